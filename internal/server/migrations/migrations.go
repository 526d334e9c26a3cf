// Package migrations embeds the goose SQL migrations for the settlement schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
