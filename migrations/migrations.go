// Package migrations embeds the goose SQL migrations for the jobs and
// candidate tables. The DDL sticks to types both PostgreSQL and SQLite accept.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
