package appfs

import "embed"

// FS holds the SQL migrations & email templates shipped with the binaries.
//go:embed migrations/*.sql templates/email/*.txt
var FS embed.FS
