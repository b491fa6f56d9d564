package graph

import "github.com/go-openapi/inflect"

// Namer derives relation keys from table names. The default is an
// English heuristic; schemas named in other languages can supply their
// own implementation.
type Namer interface {
	Singularize(table string) string
	Pluralize(table string) string
}

type inflectNamer struct {
	ruleset *inflect.Ruleset
}

// DefaultNamer returns the inflect-backed Namer used when none is
// injected.
func DefaultNamer() Namer {
	return inflectNamer{ruleset: inflect.NewDefaultRuleset()}
}

func (n inflectNamer) Singularize(table string) string {
	return n.ruleset.Singularize(table)
}

func (n inflectNamer) Pluralize(table string) string {
	return n.ruleset.Pluralize(table)
}
