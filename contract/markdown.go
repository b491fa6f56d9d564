package contract

import (
	"fmt"
	"strings"
)

// Markdown renders the contract as a human-readable document. The
// output is deterministic for a given contract.
func (c *Contract) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# API Contract\n\n")
	fmt.Fprintf(&b, "- Version: `%s`\n", c.Version)
	fmt.Fprintf(&b, "- Generated: `%s`\n", c.GeneratedAt)
	for _, r := range c.Resources {
		fmt.Fprintf(&b, "\n## %s\n\n", r.Table)
		b.WriteString("### Endpoints\n\n")
		for _, ep := range r.Endpoints {
			fmt.Fprintf(&b, "- `%s`\n", ep)
		}
		b.WriteString("\n### Methods\n\n")
		for _, m := range r.Methods {
			fmt.Fprintf(&b, "- `%s`\n", m.Signature)
		}
		if len(r.Relations) > 0 {
			b.WriteString("\n### Relations\n\n")
			b.WriteString("| Key | Kind | Target | Via |\n|---|---|---|---|\n")
			for _, rel := range r.Relations {
				via := rel.Via
				if via == "" {
					via = "-"
				}
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", rel.Key, rel.Kind, rel.Target, via)
			}
		}
	}
	return b.String()
}
