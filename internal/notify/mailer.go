package notify

import (
	"fmt"
	"net/smtp"
	"os"
)

// Mailer sends mail over plain SMTP. All failures are reported to the caller;
// deciding whether they matter is the queue's job.
type Mailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewMailerFromEnv() (*Mailer, error) {
	m := &Mailer{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
	if m.host == "" || m.from == "" {
		return nil, fmt.Errorf("SMTP_HOST and SMTP_FROM must be set")
	}
	if m.port == "" {
		m.port = "587"
	}
	return m, nil
}

func (m *Mailer) Send(to, subject, body string, html bool) error {
	contentType := "text/plain; charset=UTF-8"
	if html {
		contentType = "text/html; charset=UTF-8"
	}

	msg := []byte("From: " + m.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"\r\n" +
		body + "\r\n")

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}
