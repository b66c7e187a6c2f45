// Package acquisition locates an owner's manual PDF for a vehicle.
//
// Orchestrator.Acquire walks a fixed waterfall and stops at the first
// source that yields a manual:
//
//	checking_cache -> querying_commercial_api -> trying_manufacturer_patterns
//	  -> asking_ai_for_url -> verifying_url -> fallback_web_search_link
//
// A candidate URL is trusted only once it serves PDF bytes. Found PDFs are
// downloaded, mirrored to the blob store, recorded as a Manual and queued
// for indexing; the returned Outcome carries the index task so callers can
// wait on it. Download, upload and storage failures degrade to a
// reference-only result. Acquire never fails for a valid vehicle: the last
// stage always produces a web search link tagged web_search.
//
// Progress events are delivered on a separate goroutine and never block
// or alter the waterfall.
package acquisition
