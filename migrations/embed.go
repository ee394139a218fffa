// Package migrations embeds the SQL that bootstraps the postgres store.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
