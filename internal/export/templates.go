package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/report.html"))

// TemplateData holds data for report rendering
type TemplateData struct {
	ProjectID   string
	GeneratedAt time.Time
	Total       int
	Open        int
	InProgress  int
	Resolved    int
	Requests    []TemplateRequest
}

type TemplateRequest struct {
	PageURL     string
	SectionID   string
	Message     string
	Status      string
	SubmittedBy string
	CreatedAt   time.Time
	Replies     []TemplateReply
}

type TemplateReply struct {
	From    string
	Message string
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
