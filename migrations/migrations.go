// Package migrations embeds the bridge schema so the binary can migrate
// without a checkout. MIGRATION_PATH overrides it with a directory.
package migrations

import "embed"

// FS holds every .sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
