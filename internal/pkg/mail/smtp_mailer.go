package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/template/html/v2"

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Message is one templated email
type Message struct {
	To       []string
	Subject  string
	Template string
	Data     map[string]interface{}
}

// Sender delivers templated emails
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer renders embedded HTML templates and sends them via SMTP
type SMTPMailer struct {
	cfg    config.MailConfig
	engine *html.Engine
	send   sendFunc
}

// NewSMTPMailer loads the embedded templates once
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", cfg.Sender)
	}
	return &SMTPMailer{cfg: cfg, engine: engine, send: smtp.SendMail}, nil
}

// Render executes the named template with data
func (m *SMTPMailer) Render(name string, data map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := m.engine.Render(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render mail template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Send renders the message and delivers it
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("mail has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := m.Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	raw := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.cfg.Sender, strings.Join(msg.To, ", "), msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := m.send(addr, auth, m.cfg.Sender, msg.To, raw); err != nil {
		log.Errorf("[Mail] SMTP send error: %v", err)
		return err
	}
	log.Infof("[Mail] Email %q sent to %s via %s", msg.Template, strings.Join(msg.To, ", "), addr)
	return nil
}
