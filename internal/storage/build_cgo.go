//go:build sqlite_vec

package storage

// Compiled with CGO and the sqlite_vec tag:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// The mattn driver is registered under its own name with vec_distance_cosine
// bound on every connection, so vector ranking runs inside SQLite.

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3_manualrag"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("vec_distance_cosine", vecDistanceCosine, true)
		},
	})
}

// vecDistanceCosine mirrors sqlite-vec: 1 - cosine similarity of two float32 blobs
func vecDistanceCosine(a, b []byte) float64 {
	return 1 - cosineSimilarity(deserializeVector(a), deserializeVector(b))
}
