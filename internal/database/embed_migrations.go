package database

import "embed"

// MigrationFS embeds the ordered SQL migration chain from
// internal/database/migrations. Used by the migrate runner
// (cmd/migrate and the API's migrate-on-boot step).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
