// Package tmpl renders nginx mail-proxy configuration text from embedded
// templates.
//
// Five template identities exist: mailhost (the plaintext server block),
// mailhost_ssl (the TLS server block), and the sub-blocks
// mailhost_ssl_settings, mailhost_common and prepend_append that the server
// block templates include. Unset optional values are omitted from the output,
// never emitted with an empty value.
package tmpl

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/jaketus/nginxmailhost/config"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"join":      strings.Join,
	"directive": directiveString,
}).ParseFS(templatesFS, "templates/*.tmpl"))

// Render renders the template with the given identity. Pure: same identity
// and data render the same text.
func Render(id string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, id+".tmpl", data); err != nil {
		return "", fmt.Errorf("render template %s: %v", id, err)
	}
	return b.String(), nil
}

// directiveString renders one structured directive at the given indent: bare
// name as "name;", values as one "name value;" line per value, a block as
// "name { ... }" with its contents indented one level further.
func directiveString(d config.Directive, indent string) string {
	var b strings.Builder
	writeDirective(&b, d, indent)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeDirective(b *strings.Builder, d config.Directive, indent string) {
	switch {
	case len(d.Block) > 0:
		fmt.Fprintf(b, "%s%s {\n", indent, d.Name)
		for _, sub := range d.Block {
			writeDirective(b, sub, indent+"  ")
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case len(d.Value) == 0:
		fmt.Fprintf(b, "%s%s;\n", indent, d.Name)
	default:
		for _, v := range d.Value {
			fmt.Fprintf(b, "%s%s %s;\n", indent, d.Name, v)
		}
	}
}
