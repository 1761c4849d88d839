// Package web bundles the browser client served at "/".
package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var staticFS embed.FS

// Static returns the bundled client rooted at its index.html.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
