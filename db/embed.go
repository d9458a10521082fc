// Package db provides the embedded migration files.
package db

import "embed"

// Migrations holds the golang-migrate files for the documents schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS
