//go:build purego || !sqlite_vec

package storage

// Compiled without CGO or with the purego tag:
//
//	CGO_ENABLED=0 go build -tags "purego" ./...
//
// modernc.org/sqlite ships FTS5; cosine similarity is computed in Go.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
