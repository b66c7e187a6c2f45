// Package types provides shared type definitions for manualrag.
//
// It holds the domain entities passed between the chunker, the store, the
// retriever and the acquisition orchestrator.
//
// # Vehicles and manuals
//
// A Vehicle identifies the owner's manual to acquire. Its normalized Key is the
// cache and manual lookup key:
//
//	v := types.Vehicle{Year: 2022, Make: "Toyota", Model: "Camry"}
//	v.Key()      // "2022:toyota:camry"
//	v.FileName() // "2022-toyota-camry.pdf"
//
// A Manual is created once per vehicle key and moves through
// pending, processing, completed or failed as it is indexed.
//
// # Chunks
//
// Chunks form a three-level tree. Chapter chunks have no parent, section chunks
// point to a chapter and procedure chunks point to a section. Each level has a
// token budget (2048, 512, 256) that a chunk may exceed by at most OverlapTokens:
//
//	if err := types.ValidateHierarchy(chunks); err != nil {
//	    return err
//	}
//
// # Results
//
// RetrievalResult is a ranked passage tagged with the search that found it
// (bm25, semantic or hybrid). ManualRetrievalResult is what acquisition returns,
// tagged with the source that produced the manual URL.
package types
