package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/logger"
)

type Service interface {
	SendVerificationCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error
	SendPasswordResetCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error
}

// New picks the provider from configuration: the dev mailer when dev mode is
// on, MailerSend when an API key is present, SMTP otherwise.
func New(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		logger.Info("Using dev mailer")
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		logger.Info("Using MailerSend mailer")
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		logger.Info("Using SMTP mailer", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

type message struct {
	subject string
	text    string
	html    string
}

func verificationMessage(toName, code string, ttl time.Duration) message {
	minutes := int(ttl.Minutes())
	return message{
		subject: "Verify your BuildHub account",
		text: fmt.Sprintf("Hi %s,\n\nYour BuildHub verification code is: %s\n\nIt expires in %d minutes.",
			toName, code, minutes),
		html: fmt.Sprintf(`
		<h2>Welcome to BuildHub!</h2>
		<p>Hi %s,</p>
		<p>Your verification code is: <strong style="font-size: 24px; letter-spacing: 4px;">%s</strong></p>
		<p>This code will expire in %d minutes.</p>
		<p>If you didn't create an account with us, please ignore this email.</p>
	`, toName, code, minutes),
	}
}

func resetMessage(toName, code string, ttl time.Duration) message {
	minutes := int(ttl.Minutes())
	return message{
		subject: "Reset your BuildHub password",
		text: fmt.Sprintf("Hi %s,\n\nYour password reset code is: %s\n\nIt expires in %d minutes. If you didn't ask for a reset, ignore this email.",
			toName, code, minutes),
		html: fmt.Sprintf(`
		<h2>Password reset</h2>
		<p>Hi %s,</p>
		<p>Your password reset code is: <strong style="font-size: 24px; letter-spacing: 4px;">%s</strong></p>
		<p>This code will expire in %d minutes.</p>
		<p>If you didn't ask for a reset, you can ignore this email.</p>
	`, toName, code, minutes),
	}
}
