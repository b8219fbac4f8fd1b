// Package migrations holds the Postgres schema, applied in file-name order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Dir is the directory inside FS that holds the migration files.
const Dir = "."
