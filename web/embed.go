// Package web embeds the page templates and static assets served by
// internal/http.
package web

import "embed"

// TemplatesFS holds the page and partial templates. All files share one
// template set, so define names must be unique across files.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds app.css and app.js.
//
//go:embed static/*
var StaticFS embed.FS
