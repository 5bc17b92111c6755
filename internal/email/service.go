// Package email sends notification mail over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		s.fromHeader(),
		subject,
		body,
	))

	return s.sendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email with a plain text alternative.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	boundary := "boundary-ummahhub"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type AnswerNotificationData struct {
	AppName       string
	RecipientName string
	AnswerAuthor  string
	CategoryLabel string
	QuestionTitle string
	AnswerExcerpt string
}

// SendAnswerNotification tells a question's author that it received an answer.
func (s *Service) SendAnswerNotification(to string, data AnswerNotificationData) error {
	if data.AppName == "" {
		data.AppName = "UmmahHub"
	}
	data.AnswerExcerpt = excerpt(data.AnswerExcerpt, 280)

	html, err := renderTemplate(answerNotificationTemplate, data)
	if err != nil {
		return fmt.Errorf("render answer notification template: %w", err)
	}
	subject := fmt.Sprintf("New answer to %q", data.QuestionTitle)
	text := fmt.Sprintf("%s answered your question %q in %s:\r\n\r\n%s",
		data.AnswerAuthor, data.QuestionTitle, data.CategoryLabel, data.AnswerExcerpt)
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

type WelcomeData struct {
	AppName  string
	UserName string
}

func (s *Service) SendWelcome(to string, data WelcomeData) error {
	if data.AppName == "" {
		data.AppName = "UmmahHub"
	}
	html, err := renderTemplate(welcomeTemplate, data)
	if err != nil {
		return fmt.Errorf("render welcome template: %w", err)
	}
	text := fmt.Sprintf("Welcome to %s, %s.", data.AppName, data.UserName)
	return s.SendHTMLEmail([]string{to}, "Welcome to "+data.AppName, text, html)
}

func excerpt(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const answerNotificationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New answer on {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f5d50; padding-bottom: 10px; margin-bottom: 20px; }
        .quote { background: #f6f8f7; padding: 12px; border-left: 3px solid #2f5d50; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Assalamu alaikum {{.RecipientName}},</p>

    <p>{{.AnswerAuthor}} answered your question <strong>{{.QuestionTitle}}</strong> in {{.CategoryLabel}}:</p>

    <div class="quote">{{.AnswerExcerpt}}</div>

    <div class="footer">
        <p>You receive this because you asked the question on {{.AppName}}.</p>
    </div>
</body>
</html>`

const welcomeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Welcome to {{.AppName}}</title>
</head>
<body>
    <h1>{{.AppName}}</h1>
    <p>Assalamu alaikum {{.UserName}}, your account is ready.</p>
    <p>You can now ask questions, answer others and share dua requests with the community.</p>
</body>
</html>`
