// Package migrations embeds the goose migration set for the login
// authority's schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
