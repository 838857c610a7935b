package db

import "embed"

// MigrationFS embeds the SQL migrations for the users and revoked_sessions tables.
// Applied by cmd/migrate through the migrate runner.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
