package tutorsite

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/labstack/echo/v4"
)

// Renderer implements echo.Renderer over the embedded templates. Each page
// template is parsed together with the base layout so pages only fill in
// the blocks they define.
type Renderer struct {
	templates map[string]*template.Template
}

var templatePages = []string{
	"home.html",
	"about.html",
	"blog.html",
	"post.html",
	"resources.html",
	"login.html",
	"notfound.html",
	"servererror.html",
	"admin_dashboard.html",
	"admin_posts.html",
	"admin_post_form.html",
	"admin_resources.html",
	"admin_settings.html",
	"admin_subscribers.html",
}

func rawHTML(s string) template.HTML {
	return template.HTML(s)
}

// jsonLDScript emits a schema.org script element. The payload comes out of
// json.Marshal, so embedding it unescaped is safe.
func jsonLDScript(s string) template.HTML {
	return template.HTML(`<script type="application/ld+json">` + s + `</script>`)
}

func longDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("January 2, 2006")
}

// NewRenderer parses the embedded templates. It panics on a malformed
// template, which only happens at build time.
func NewRenderer() *Renderer {
	funcs := template.FuncMap{
		"rawhtml":  rawHTML,
		"jsonld":   jsonLDScript,
		"longdate": longDate,
	}

	templates := make(map[string]*template.Template)
	for _, page := range templatePages {
		templates[page] = template.Must(
			template.New("base.html").Funcs(funcs).ParseFS(
				templateFS,
				"web/templates/base.html",
				"web/templates/"+page,
			))
	}
	return &Renderer{templates: templates}
}

// Render writes the named page template wrapped in the base layout.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("render: unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "base.html", data)
}
