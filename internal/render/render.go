// Package render fills {{placeholder}} templates for the HTML pages.
package render

import (
	"sort"
	"strings"
)

// Values maps placeholder names, without braces, to their replacement.
type Values map[string]string

// Apply replaces every {{key}} of v in tpl with its value. Placeholders
// without a value are left as they are. Replacement is literal and, for
// overlapping keys, follows sorted key order.
func Apply(tpl string, v Values) string {
	if len(v) == 0 || tpl == "" {
		return tpl
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", v[k])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
