// Package migrations embeds the goose SQL migrations for the Storage
// Service's local SQLite schema. Distinct from internal/client/migration
// (the spec §4.6 app-level Migration Service, which versions user-data
// semantics synced across devices) — these migrations version only this
// device's local cache tables. Pattern grounded on the teacher's
// internal/client/client.RunMigrations / goose.SetBaseFS usage.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
