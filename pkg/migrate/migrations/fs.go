// Package migrations embeds the goose SQL files so every binary carries its
// own schema history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
