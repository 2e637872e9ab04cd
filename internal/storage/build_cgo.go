//go:build fts5 && !purego
// +build fts5,!purego

package storage

// This file is compiled when building with CGO and the fts5 tag.
// It uses the C SQLite driver for faster query execution.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "fts5" ./...
//
// The CGO implementation provides:
//   - Native C SQLite with FTS5 compiled in
//   - Faster full-text and bulk operations
//   - Recommended for large knowledge bases
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
