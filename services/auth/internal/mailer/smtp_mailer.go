package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	smtpDialTimeout = 10 * time.Second
	mimeBoundary    = "buildhub-alt-boundary"
)

// SMTPMailer delivers codes over SMTP. Plain connections upgrade with
// STARTTLS when the server offers it; UseTLS dials implicit TLS (port 465).
type SMTPMailer struct {
	Host   string
	Port   int
	From   string
	User   string
	Pass   string
	UseTLS bool
}

func NewSMTPMailer(host string, port int, from, user, pass string, useTLS bool) *SMTPMailer {
	return &SMTPMailer{
		Host:   strings.TrimSpace(host),
		Port:   port,
		From:   strings.TrimSpace(from),
		User:   strings.TrimSpace(user),
		Pass:   strings.TrimSpace(pass),
		UseTLS: useTLS,
	}
}

func (s *SMTPMailer) SendVerificationCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error {
	return s.send(ctx, toEmail, verificationMessage(toName, code, ttl))
}

func (s *SMTPMailer) SendPasswordResetCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error {
	return s.send(ctx, toEmail, resetMessage(toName, code, ttl))
}

func (s *SMTPMailer) send(ctx context.Context, toEmail string, m message) error {
	toEmail = strings.TrimSpace(toEmail)
	if toEmail == "" {
		return fmt.Errorf("empty recipient email")
	}
	body := compose(s.From, toEmail, m)
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}

	if !s.UseTLS {
		if err := smtp.SendMail(addr, auth, s.From, []string{toEmail}, body); err != nil {
			return fmt.Errorf("smtp send to %s: %w", toEmail, err)
		}
		return nil
	}

	if err := s.sendImplicitTLS(ctx, addr, auth, toEmail, body); err != nil {
		return fmt.Errorf("smtp send to %s: %w", toEmail, err)
	}
	return nil
}

func (s *SMTPMailer) sendImplicitTLS(ctx context.Context, addr string, auth smtp.Auth, to string, body []byte) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: smtpDialTimeout},
		Config:    &tls.Config{ServerName: s.Host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// compose renders a multipart/alternative message with text and HTML parts.
func compose(from, to string, m message) []byte {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from)
	header("To", to)
	header("Subject", m.subject)
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mimeBoundary)
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", m.text},
		{"text/html", m.html},
	} {
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: %s; charset=utf-8\r\n\r\n%s\r\n\r\n", mimeBoundary, part.contentType, part.body)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", mimeBoundary)
	return buf.Bytes()
}
