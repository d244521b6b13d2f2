// Package prompt renders the directives sent to the transcription and
// language model stages.
//
// Directives are pongo2 templates. The variables available to every template
// are source (the spoken language), target (the language replies are read
// back in), working (the language the model reasons in) and text (the stage
// input, empty where it does not apply). Autoescaping is disabled and tags
// that read other templates (extends, include, import, ssi) are banned, so a
// directive can only see the variables it is given.
package prompt

import (
	"embed"
	"fmt"

	"github.com/flosch/pongo2/v6"
)

// Default directives. Rendered with [DefaultVars] they reproduce the
// Hindi/English relay.
const (
	DefaultTranscription   = "Translate {{ source }} speech to {{ working }} text."
	DefaultAssistant       = "You are a helpful AI."
	DefaultTranslator      = "You are a translator."
	DefaultBackTranslation = "Translate to {{ target }}: {{ text }}"
)

// Vars are the values a directive is rendered with.
type Vars struct {
	Source  string
	Target  string
	Working string
	Text    string
}

// DefaultVars returns the Hindi/English language set.
func DefaultVars() Vars {
	return Vars{Source: "Hindi", Target: "Hindi", Working: "English"}
}

// WithText returns a copy of v carrying text.
func (v Vars) WithText(text string) Vars {
	v.Text = text
	return v
}

func (v Vars) context() pongo2.Context {
	return pongo2.Context{
		"source":  v.Source,
		"target":  v.Target,
		"working": v.Working,
		"text":    v.Text,
	}
}

// noFiles backs the template set's loader; directives never read files.
var noFiles embed.FS

var set = newSet()

func newSet() *pongo2.TemplateSet {
	s := pongo2.NewSet("prompt", pongo2.NewFSLoader(noFiles))
	for _, tag := range []string{"extends", "include", "import", "ssi"} {
		if err := s.BanTag(tag); err != nil {
			panic("prompt: ban tag " + tag + ": " + err.Error())
		}
	}
	return s
}

// Template is a compiled directive. It is safe for concurrent use.
type Template struct {
	src string
	tpl *pongo2.Template
}

// Parse compiles src.
func Parse(src string) (*Template, error) {
	tpl, err := set.FromString("{% autoescape off %}" + src + "{% endautoescape %}")
	if err != nil {
		return nil, fmt.Errorf("prompt: parse %q: %w", src, err)
	}
	return &Template{src: src, tpl: tpl}, nil
}

// MustParse is like [Parse] but panics on error. Use it for the package
// defaults and in tests.
func MustParse(src string) *Template {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes the template with v.
func (t *Template) Render(v Vars) (string, error) {
	out, err := t.tpl.Execute(v.context())
	if err != nil {
		return "", fmt.Errorf("prompt: render %q: %w", t.src, err)
	}
	return out, nil
}

// String returns the template source.
func (t *Template) String() string {
	return t.src
}
