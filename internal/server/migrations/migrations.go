// Package migrations embeds the reference sync server's goose schema
// migrations so repomanager can run them against a fresh database
// without shipping the .sql files separately from the binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
