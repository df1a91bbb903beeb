// Package migrations holds the SQLite schema as ordered SQL files.
package migrations

import "embed"

// FS contains every NNN_name.sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
