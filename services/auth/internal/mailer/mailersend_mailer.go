package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendVerificationCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error {
	return m.sendEmail(ctx, toEmail, toName, verificationMessage(toName, code, ttl))
}

func (m *MailerSendClient) SendPasswordResetCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error {
	return m.sendEmail(ctx, toEmail, toName, resetMessage(toName, code, ttl))
}

func (m *MailerSendClient) sendEmail(ctx context.Context, toEmail, toName string, mail message) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(mail.subject)

	if strings.TrimSpace(mail.text) != "" {
		msg.SetText(mail.text)
	}
	if strings.TrimSpace(mail.html) != "" {
		msg.SetHTML(mail.html)
	}

	if _, err := m.client.Email.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailersend: %w", err)
	}
	return nil
}
