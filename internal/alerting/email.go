package alerting

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailOptions configure SMTP delivery.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailNotifier sends one plain-text email per digest.
type EmailNotifier struct {
	opts       EmailOptions
	summarizer Summarizer
	sendMail   SendMailFunc
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEmailNotifier builds an SMTP notifier. A nil summarizer uses the template.
func NewEmailNotifier(opts EmailOptions, summarizer Summarizer, logger zerolog.Logger) *EmailNotifier {
	if summarizer == nil {
		summarizer = TemplateSummarizer{}
	}
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &EmailNotifier{
		opts:       opts,
		summarizer: summarizer,
		sendMail:   smtp.SendMail,
		now:        time.Now,
		logger:     logger.With().Str("component", "alert_email").Logger(),
	}
}

// WithSendMail swaps the transport, mainly for tests.
func (n *EmailNotifier) WithSendMail(fn SendMailFunc) *EmailNotifier {
	n.sendMail = fn
	return n
}

// Notify renders the digest and hands it to the SMTP server.
func (n *EmailNotifier) Notify(ctx context.Context, digest Digest) error {
	recipient := strings.TrimSpace(digest.Recipient)
	if recipient == "" {
		return ErrNoRecipient
	}
	if n.opts.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	msg, err := n.summarizer.Summarize(ctx, digest)
	if err != nil {
		return fmt.Errorf("summarize digest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.opts.Username != "" {
		auth = smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	}

	from := n.opts.From
	if from == "" {
		from = n.opts.Username
	}
	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	raw := buildMIME(from, recipient, msg, n.now())

	if err := n.sendMail(addr, auth, from, []string{recipient}, raw); err != nil {
		return fmt.Errorf("send email via %s: %w", addr, err)
	}

	n.logger.Info().
		Str("run_id", digest.RunID).
		Str("recipient", recipient).
		Int("events", len(digest.Events)).
		Msg("digest sent (email)")
	return nil
}

func buildMIME(from, to string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)) + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

var _ Notifier = (*EmailNotifier)(nil)
