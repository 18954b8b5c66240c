// Package migrations holds the SQL schema for the prediction log.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
