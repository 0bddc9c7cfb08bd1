// Package assets embeds the playground client, its stylesheet and the page
// templates.
package assets

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

//go:embed templates/*.html
var templateFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetPlaygroundJS returns the browser side of the playground session
func GetPlaygroundJS() ([]byte, error) {
	return clientFS.ReadFile("client/playground.js")
}

// GetPlaygroundCSS returns the playground and docs stylesheet
func GetPlaygroundCSS() ([]byte, error) {
	return clientFS.ReadFile("client/playground.css")
}

// Templates parses the page templates. Each file is available under its
// base name, e.g. "playground.html".
func Templates(funcs template.FuncMap) (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}
