// Package migrations embeds the database schemas applied at startup.
package migrations

import _ "embed"

//go:embed 001_create_tasks.up.sql
var PostgresUp string

// SQLite stores timestamps as unix microseconds so they sort numerically.
//
//go:embed sqlite_schema.sql
var SQLite string
