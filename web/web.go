// Package web embeds the built-in dashboard assets. The files can be
// overridden by placing a web/ directory in the working directory.
package web

import "embed"

//go:embed index.html style.css
var FS embed.FS
