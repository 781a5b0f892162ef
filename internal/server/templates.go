package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/error.html
var errorPageTemplateHTML string

var errorPageTemplate = template.Must(template.New("error").Parse(errorPageTemplateHTML))

// ErrorPageData represents the data for the sign-in error page
type ErrorPageData struct {
	Message  string
	HomePath string
}
