// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/beaconhill/compliance-tracker/cliparse"
)

// Message is one outbound email. HTML may be empty for text-only mail.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipients is returned for a message without recipients.
var ErrNoRecipients = errors.New("message has no recipients")

// New returns an SMTPMailer when a mail server is configured and a LogMailer
// otherwise.
func New(cfg cliparse.MailConfig) Mailer {
	if cfg.Server == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail over SMTP. Deliveries are rate limited and pass
// through a circuit breaker that opens after five consecutive failures.
type SMTPMailer struct {
	cfg     cliparse.MailConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	dial    func(ctx context.Context) (net.Conn, error)
}

func NewSMTPMailer(cfg cliparse.MailConfig) *SMTPMailer {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	m := &SMTPMailer{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
	m.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("mail circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	m.dial = m.dialServer
	return m
}

// Send waits for the rate limiter and delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail rate limit: %w", err)
	}
	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.deliver(ctx, msg)
	})
	return err
}

func (m *SMTPMailer) addr() string {
	return net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))
}

func (m *SMTPMailer) dialServer(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	if m.cfg.UseSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Server}}
		return td.DialContext(ctx, "tcp", m.addr())
	}
	return dialer.DialContext(ctx, "tcp", m.addr())
}

func (m *SMTPMailer) deliver(ctx context.Context, msg Message) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to mail server: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))

	c, err := smtp.NewClient(conn, m.cfg.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer c.Close()

	if m.cfg.UseTLS && !m.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("mail server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Server}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.DefaultSender); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	body, err := Compose(m.cfg.DefaultSender, msg, time.Now())
	if err != nil {
		w.Close()
		return err
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return c.Quit()
}

// Compose renders msg as an RFC 5322 message. Messages with both parts are
// sent as multipart/alternative.
func Compose(from string, msg Message, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from)
	header("To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	if msg.HTML == "" {
		header("Content-Type", `text/plain; charset="utf-8"`)
		buf.WriteString("\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header("Content-Type", `multipart/alternative; boundary="`+mw.Boundary()+`"`)
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{`text/plain; charset="utf-8"`, msg.Text},
		{`text/html; charset="utf-8"`, msg.HTML},
	} {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, fmt.Errorf("failed to create mime part: %w", err)
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("failed to write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mime writer: %w", err)
	}
	return buf.Bytes(), nil
}

// LogMailer logs messages instead of sending them. Used when no mail server
// is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "mail server not configured, email not sent",
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
	)
	return nil
}

// Recorder keeps sent messages in memory. Tests use it to inspect mail;
// setting Err makes every Send fail.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
