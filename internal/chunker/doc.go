// Package chunker divides owner's manual text into a hierarchy of retrievable chunks.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks, err := c.Chunk(text, manualID, vehicle)
//	if errors.Is(err, types.ErrTextTooShort) {
//	    // extraction produced too little text to index
//	}
//
// # Hierarchy
//
// Text is split in three passes:
//   - Chapters: "Chapter N", "Part N" or all-caps heading lines, ~2048 tokens
//   - Sections: dotted numbers ("3.2 Checking Oil") or markdown headers, ~512 tokens
//   - Procedures: fixed windows of ~256 tokens inside any section over 512 tokens
//
// When a level has no headings the text is cut into fixed-width windows that
// overlap by about 40 tokens, never more than half of the smaller window.
// Chunks are emitted depth-first, so parents always precede their children.
//
// Token estimation uses a simple heuristic (chars/4).
//
// # Metadata
//
// Each chunk carries the first page marker found in it ("Page 12", "- 12 -",
// or a bare number on its own line; form feeds from pdftotext otherwise) and a
// content type from Classify.
//
// # Determinism
//
// Chunk IDs are name-based UUIDs of the manual ID and sequence index, so
// chunking the same text twice yields identical chunks and reindexing
// overwrites rows in place.
package chunker
