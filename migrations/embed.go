// Package migrations holds the versioned sqlite schema for the nutrition
// tracker: catalog, profiles, conversations, logs and daily summaries.
package migrations

import "embed"

// FS is applied by database.ApplyMigrations through the iofs source.
//
//go:embed *.sql
var FS embed.FS
