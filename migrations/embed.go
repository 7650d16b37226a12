// Package migrations embeds the SQL schema files applied by leadctl migrate
// and at server start.
package migrations

import "embed"

// FS holds the NNN_name.sql files in lexical order.
//
//go:embed *.sql
var FS embed.FS
