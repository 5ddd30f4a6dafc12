// Package web holds the embedded dashboard assets.
package web

import "embed"

//go:embed templates
var TemplateFiles embed.FS
