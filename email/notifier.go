// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/beaconhill/compliance-tracker/metrics"
)

//go:embed templates
var templateFS embed.FS

// Template names.
const (
	TemplateVerification  = "verification"
	TemplatePasswordReset = "password_reset"
	TemplateContact       = "contact"
	TemplateRoleUpdate    = "role_update"
	TemplateKeyGenerated  = "key_generated"
)

var funcs = map[string]any{
	"title": title,
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type templates struct {
	html map[string]*htmltemplate.Template
	text map[string]*texttemplate.Template
}

func loadTemplates() (*templates, error) {
	t := &templates{
		html: make(map[string]*htmltemplate.Template),
		text: make(map[string]*texttemplate.Template),
	}
	for _, name := range []string{TemplateVerification, TemplatePasswordReset, TemplateContact, TemplateRoleUpdate, TemplateKeyGenerated} {
		txt, err := texttemplate.New(name + ".txt").Funcs(funcs).ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s text template: %w", name, err)
		}
		t.text[name] = txt

		if _, err := fs.Stat(templateFS, "templates/"+name+".html"); err != nil {
			continue // text-only
		}
		html, err := htmltemplate.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s html template: %w", name, err)
		}
		t.html[name] = html
	}
	return t, nil
}

func (t *templates) render(name string, data any) (html, text string, err error) {
	var buf bytes.Buffer
	if err := t.text[name].Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	text = strings.TrimSpace(buf.String())

	if h, ok := t.html[name]; ok {
		buf.Reset()
		if err := h.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("failed to render %s: %w", name, err)
		}
		html = buf.String()
	}
	return html, text, nil
}

// ContactForm is a message submitted through the site's contact form.
type ContactForm struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Notifier renders and sends the tracker's emails.
type Notifier struct {
	mailer          Mailer
	contactEmail    string
	verificationTTL time.Duration
	resetTTL        time.Duration
	tmpl            *templates
}

// NotifierConfig carries the values rendered into messages.
type NotifierConfig struct {
	ContactEmail    string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

func NewNotifier(m Mailer, cfg NotifierConfig) (*Notifier, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &Notifier{
		mailer:          m,
		contactEmail:    cfg.ContactEmail,
		verificationTTL: cfg.VerificationTTL,
		resetTTL:        cfg.ResetTTL,
		tmpl:            tmpl,
	}, nil
}

func (n *Notifier) send(ctx context.Context, name string, msg Message, data any) error {
	html, text, err := n.tmpl.render(name, data)
	if err != nil {
		return err
	}
	msg.HTML, msg.Text = html, text
	err = n.mailer.Send(ctx, msg)
	metrics.RecordEmail(name, err)
	return err
}

type linkData struct {
	URL    string
	Expiry string
}

// SendVerification mails the account verification link.
func (n *Notifier) SendVerification(ctx context.Context, to, url string) error {
	err := n.send(ctx, TemplateVerification, Message{
		To:      []string{to},
		Subject: "Verify Your Email - Beacon Hill Compliance Tracker",
	}, linkData{URL: url, Expiry: humanize(n.verificationTTL)})
	if err != nil {
		return fmt.Errorf("failed to send verification email to %s: %w", to, err)
	}
	slog.InfoContext(ctx, "verification email sent", "to", to)
	return nil
}

// SendPasswordReset mails the password reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, to, url string) error {
	err := n.send(ctx, TemplatePasswordReset, Message{
		To:      []string{to},
		Subject: "Reset Your Password - Beacon Hill Compliance Tracker",
	}, linkData{URL: url, Expiry: humanize(n.resetTTL)})
	if err != nil {
		return fmt.Errorf("failed to send password reset email to %s: %w", to, err)
	}
	slog.InfoContext(ctx, "password reset email sent", "to", to)
	return nil
}

// SendContact forwards a contact form submission to the site's contact
// address with Reply-To set to the sender.
func (n *Notifier) SendContact(ctx context.Context, form ContactForm) error {
	err := n.send(ctx, TemplateContact, Message{
		To:      []string{n.contactEmail},
		Subject: "Contact Form: " + form.Subject,
		ReplyTo: form.Email,
	}, form)
	if err != nil {
		return fmt.Errorf("failed to send contact form email: %w", err)
	}
	slog.InfoContext(ctx, "contact form email sent", "to", n.contactEmail, "from", form.Email)
	return nil
}

// SendRoleUpdate tells a user their role changed. Failures are logged only.
func (n *Notifier) SendRoleUpdate(ctx context.Context, to, newRole, oldRole string) {
	err := n.send(ctx, TemplateRoleUpdate, Message{
		To:      []string{to},
		Subject: "Account Role Updated - Beacon Hill Compliance Tracker",
	}, struct{ NewRole, OldRole string }{newRole, oldRole})
	if err != nil {
		slog.ErrorContext(ctx, "failed to send role update email", "to", to, "error", err)
		return
	}
	slog.InfoContext(ctx, "role update email sent", "to", to)
}

// SendKeyGenerated tells a user a signing key was issued to them. Failures
// are logged only.
func (n *Notifier) SendKeyGenerated(ctx context.Context, to, keyID string) {
	err := n.send(ctx, TemplateKeyGenerated, Message{
		To:      []string{to},
		Subject: "New Signing Key Generated - Beacon Hill Compliance Tracker",
	}, struct{ KeyID string }{keyID})
	if err != nil {
		slog.ErrorContext(ctx, "failed to send key generation email", "to", to, "error", err)
		return
	}
	slog.InfoContext(ctx, "key generation email sent", "to", to)
}

// humanize renders a link lifetime the way the emails phrase it.
func humanize(d time.Duration) string {
	unit := func(n int, s string) string {
		if n == 1 {
			return "1 " + s
		}
		return fmt.Sprintf("%d %ss", n, s)
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return unit(int(d/time.Hour), "hour")
	}
	return unit(int(d.Round(time.Minute)/time.Minute), "minute")
}
