package web

import "embed"

// staticFS holds the dashboard's single-page HTML/JS client.
//
//go:embed static
var staticFS embed.FS
