// Package db carries the embedded schema applied by RunMigrations at startup.
package db

import _ "embed"

// Schema is the full DDL for the commerce tables. Statements are idempotent
// (CREATE ... IF NOT EXISTS) so re-applying on every boot is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
