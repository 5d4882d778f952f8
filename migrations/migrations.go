// Package migrations embeds the SQL schema applied by postgres.DB.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
