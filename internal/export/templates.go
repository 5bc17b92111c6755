package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var threadTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"paragraphs": paragraphs,
	}

	templateContent, err := templateFS.ReadFile("templates/thread.html")
	if err != nil {
		threadTemplate = template.Must(template.New("thread").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	threadTemplate = template.Must(template.New("thread").Funcs(funcMap).Parse(string(templateContent)))
}

// paragraphs escapes text and turns blank-line separated blocks into <p> elements.
func paragraphs(text string) template.HTML {
	var buf strings.Builder
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i, line := range lines {
			lines[i] = template.HTMLEscapeString(line)
		}
		buf.WriteString("<p>")
		buf.WriteString(strings.Join(lines, "<br>"))
		buf.WriteString("</p>")
	}
	return template.HTML(buf.String())
}

func renderThreadHTML(data templateData) (string, error) {
	var buf bytes.Buffer
	if err := threadTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Question.Title}}</title>
</head>
<body>
  <h1>{{.Question.Title}}</h1>
  <p>{{.Question.Author}} | {{.CategoryLabel}}</p>
  <div>{{paragraphs .Question.Body}}</div>
  {{range .Answers}}<div>{{paragraphs .Body}}<p>{{.Author}}</p></div>{{end}}
</body>
</html>`
