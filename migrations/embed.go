package migrations

import "embed"

// Files embeds the SQL migrations in golang-migrate naming.
//
//go:embed *.sql
var Files embed.FS
