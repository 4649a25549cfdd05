package mailer

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/ganttmailer/internal/model"
)

//go:embed templates/email.html
var templateFS embed.FS

var emailTmpl = template.Must(template.ParseFS(templateFS, "templates/email.html"))

type emailData struct {
	FirstName     string
	LastName      string
	ProjectName   string
	ProjectNumber string
}

// RenderBody renders the HTML body for an account's report email.
func RenderBody(a model.Account) (string, error) {
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, emailData{
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		ProjectName:   a.ProjectName,
		ProjectNumber: a.ProjectNumber,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Subject returns the subject line for an account's report email.
func Subject(a model.Account) string {
	return "Projektupdate: " + a.ProjectNumber + " " + a.ProjectName
}
