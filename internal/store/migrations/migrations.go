// Package migrations embeds the store's goose migration ladder.
package migrations

import "embed"

// FS holds the .sql migration files, grounded on the teacher's own
// embed.FS-backed migrations package.
//
//go:embed *.sql
var FS embed.FS
