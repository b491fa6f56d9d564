package gen

import (
	"strings"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ruleset = inflect.NewDefaultRuleset()
	titler  = cases.Title(language.English, cases.NoLower)
)

// initialisms are segments rendered fully upper in exported names, so
// author_id becomes AuthorID and api_url becomes APIURL.
var initialisms = map[string]string{
	"id":   "ID",
	"ids":  "IDs",
	"uuid": "UUID",
	"url":  "URL",
	"uri":  "URI",
	"api":  "API",
	"http": "HTTP",
	"json": "JSON",
	"sql":  "SQL",
	"jwt":  "JWT",
	"sdk":  "SDK",
}

// exported converts a snake_case catalog identifier into an exported
// Go identifier.
func exported(name string) string {
	var sb strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		if up, ok := initialisms[strings.ToLower(part)]; ok {
			sb.WriteString(up)
			continue
		}
		sb.WriteString(titler.String(part))
	}
	if sb.Len() == 0 {
		return "X"
	}
	return sb.String()
}

// typeName is the singular exported name for a table's row struct,
// e.g. books -> Book, book_tags -> BookTag.
func typeName(table string) string {
	return exported(ruleset.Singularize(table))
}

// pluralName is the exported plural name used for services and route
// registrars, e.g. books -> Books.
func pluralName(table string) string {
	return exported(table)
}
