// Package assets embeds the bundled script library.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed scripts
var embedded embed.FS

// Scripts returns a sub-filesystem rooted at the scripts/ directory. The
// lib/ subdirectory holds JavaScript modules served under require("@box/…").
func Scripts() fs.FS {
	sub, err := fs.Sub(embedded, "scripts")
	if err != nil {
		panic("assets: sub scripts: " + err.Error())
	}
	return sub
}
