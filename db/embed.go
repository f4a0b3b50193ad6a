// Package db provides embedded database schema and migration files.
package db

import _ "embed"

// Schema holds the DDL for the catalog, promo, order and stock tables.
//
//go:embed migrations/001_schema.sql
var Schema string
