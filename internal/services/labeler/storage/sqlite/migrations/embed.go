package migrations

import "embed"

// FS contains embedded SQLite migrations for labeler storage.
//
//go:embed *.sql
var FS embed.FS
