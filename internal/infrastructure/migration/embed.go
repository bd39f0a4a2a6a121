package migration

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql
var files embed.FS

// Embedded returns the migrations compiled into the binary
func Embedded() fs.FS {
	sub, err := fs.Sub(files, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}
