package mail

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

// ConfirmationMailParams fills templates/confirm.html.
type ConfirmationMailParams struct {
	BrandingName string
	Email        string
	Link         string
	ExpiresIn    string
}

// PasswordResetMailParams fills templates/reset.html.
type PasswordResetMailParams struct {
	BrandingName string
	Email        string
	Link         string
	ExpiresIn    string
}

// TwoFactorMailParams fills templates/twofactor.html.
type TwoFactorMailParams struct {
	BrandingName string
	Email        string
	Code         string
}

var (
	//go:embed templates/*.html
	templateFS embed.FS

	confirmTemplate   = mustParse("confirm.html")
	resetTemplate     = mustParse("reset.html")
	twoFactorTemplate = mustParse("twofactor.html")
)

func mustParse(name string) *template.Template {
	return template.Must(template.New(name).
		Funcs(sprig.FuncMap()).
		ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

func render(t *template.Template, p any) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, p)
	return b.String(), err
}

func RenderConfirmation(p ConfirmationMailParams) (string, error) {
	return render(confirmTemplate, p)
}

func RenderPasswordReset(p PasswordResetMailParams) (string, error) {
	return render(resetTemplate, p)
}

func RenderTwoFactor(p TwoFactorMailParams) (string, error) {
	return render(twoFactorTemplate, p)
}
