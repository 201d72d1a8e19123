package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type leadStatusChangedEmailData struct {
	baseEmailData
	LeadStatusChanged
}

type accessRequestEmailData struct {
	baseEmailData
	AccessRequest
}

// RenderLeadStatusChanged returns the subject and HTML body for a status update.
func RenderLeadStatusChanged(data LeadStatusChanged) (string, string, error) {
	content, err := renderEmailTemplate("lead_status_changed.html", leadStatusChangedEmailData{
		baseEmailData: baseEmailData{
			Title:      "Your inquiry was updated",
			Heading:    "Your inquiry was updated",
			Subheading: data.PropertyTitle,
		},
		LeadStatusChanged: data,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectLeadStatusChangedFmt, data.PropertyTitle), content, nil
}

// RenderAccessRequest returns the subject and HTML body for an access request.
func RenderAccessRequest(data AccessRequest) (string, string, error) {
	capability := data.Module
	if data.Action != "" {
		capability = data.Module + "." + data.Action
	}
	content, err := renderEmailTemplate("access_request.html", accessRequestEmailData{
		baseEmailData: baseEmailData{
			Title:    "Access request",
			Heading:  "Access request",
			CTALabel: "Review permissions",
			CTAURL:   data.ReviewURL,
		},
		AccessRequest: data,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectAccessRequestFmt, data.RequesterName, capability), content, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
