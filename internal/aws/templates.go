package aws

import (
	"embed"
	"strings"
	"text/template"
)

// Policy documents ship inside the binary; the tool has no install
// directory to read them from at runtime.
//
//go:embed policies/*.json
var policyFS embed.FS

func renderPolicy(name string, data map[string]any) (string, error) {
	raw, err := policyFS.ReadFile("policies/" + name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return "", err
	}
	doc := new(strings.Builder)
	if err := tmpl.Execute(doc, data); err != nil {
		return "", err
	}
	return doc.String(), nil
}
