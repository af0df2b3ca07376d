// Package templates renders the subject and body of account mail.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

const (
	ActivateAccount = "activate_account"
	ResetPassword   = "reset_password"
)

// Data is the template input shared by all account mail.
type Data struct {
	AppName     string
	Name        string
	Email       string
	ActivateURL string
	ResetURL    string
	ExpiresIn   time.Duration
}

func funcs() texttpl.FuncMap {
	return texttpl.FuncMap{
		"upper": strings.ToUpper,
		"hours": func(d time.Duration) string { return fmt.Sprintf("%.0f", d.Hours()) },
		"minutes": func(d time.Duration) string {
			return fmt.Sprintf("%.0f", d.Minutes())
		},
		"default": func(fallback, value string) string {
			if strings.TrimSpace(value) == "" {
				return fallback
			}
			return value
		},
	}
}

func renderFile(filename string, data Data) (string, error) {
	tpl, err := texttpl.New(filename).Funcs(funcs()).ParseFS(FS, filename)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", filename, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", filename, err)
	}
	return buf.String(), nil
}

// Render renders <name>.subject.tmpl and <name>.text.tmpl.
func Render(name string, data Data) (subject, text string, err error) {
	subject, err = renderFile(name+".subject.tmpl", data)
	if err != nil {
		return "", "", err
	}
	text, err = renderFile(name+".text.tmpl", data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), text, nil
}
