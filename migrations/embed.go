// Package migrations carries the SQL schema of the session event journal.
package migrations

import "embed"

// FS holds every *.sql migration.
//
//go:embed *.sql
var FS embed.FS
