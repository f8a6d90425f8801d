package mail

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// TemplateData carries the variables rendered into transactional templates.
type TemplateData struct {
	DisplayName string
	Link        string
	TTLHours    int
}

// RenderVerification renders the email-verification body.
func RenderVerification(data TemplateData) (string, error) {
	return render("verify.html", data)
}

// RenderPasswordReset renders the password-reset body.
func RenderPasswordReset(data TemplateData) (string, error) {
	return render("reset.html", data)
}

func render(name string, data TemplateData) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return b.String(), nil
}
