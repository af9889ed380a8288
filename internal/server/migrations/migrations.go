// Package migrations embeds the goose SQL migrations for the database
// backed record indexes, one directory per dialect.
package migrations

import "embed"

const (
	DirPostgres = "postgres"
	DirSQLite   = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS
