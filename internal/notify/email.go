package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends plain text email.
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	fromName string
	sendMail sendMailFunc
}

// NewSMTPSender creates an email sender. Port defaults to 587.
func NewSMTPSender(host, port, username, password, fromEmail, fromName string) *SMTPSender {
	if port == "" {
		port = "587"
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     fromEmail,
		fromName: fromName,
		sendMail: smtp.SendMail,
	}
}

// Send emails body to the recipient.
func (e *SMTPSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	addr := e.host + ":" + e.port
	if err := e.sendMail(addr, auth, e.from, []string{to}, e.message(to, subject, body)); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return "", nil
}

func (e *SMTPSender) message(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", e.fromName, e.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
