// Package template renders message bodies by substituting {{variable}}
// placeholders.
package template

import "strings"

// Render replaces every {{key}} placeholder in body with its value from
// vars. Placeholders without a mapping are left untouched so the console
// can spot an incomplete variable map in the delivered content.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}
	result := body
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}
