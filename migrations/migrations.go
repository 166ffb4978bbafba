// Package migrations embeds the SQL migrations for the local mirror.
package migrations

import "embed"

// FS holds the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
