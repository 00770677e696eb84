// Package migrations ships the SQL schema for the server databases.
// The layout is <dialect>/<version>_<name>.<up|down>.sql.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed postgres/*.sql mysql/*.sql
var FS embed.FS
