package mailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/diagnosis/buildhub/pkg/logger"
)

// DevMailer prints mail to the log and to out instead of sending it.
type DevMailer struct {
	out io.Writer
}

func NewDevMailer() *DevMailer {
	return &DevMailer{out: os.Stdout}
}

func (d *DevMailer) SendVerificationCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error {
	return d.print(ctx, "VERIFICATION EMAIL", toEmail, toName, code, verificationMessage(toName, code, ttl))
}

func (d *DevMailer) SendPasswordResetCode(ctx context.Context, toEmail, toName, code string, ttl time.Duration) error {
	return d.print(ctx, "PASSWORD RESET EMAIL", toEmail, toName, code, resetMessage(toName, code, ttl))
}

func (d *DevMailer) print(ctx context.Context, kind, toEmail, toName, code string, m message) error {
	logger.InfoContext(ctx, "[DEV MAIL] "+m.subject, "to", toEmail, "name", toName, "code", code)

	_, err := fmt.Fprintf(d.out, "\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"%s (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: %s\n"+
		"\n"+
		"%s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		kind, toEmail, toName, m.subject, m.text)
	return err
}
