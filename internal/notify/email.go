// Package notify tells customers that their download is ready. SMTPNotifier
// sends an HTML email with the download link; LogNotifier only logs it and
// is meant for development setups without a mail relay.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SendFunc delivers one built message. The default dials the relay with
// the configured timeout and honours ctx.
type SendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	Timeout  time.Duration
}

// SMTPNotifier delivers notifications through an SMTP relay.
type SMTPNotifier struct {
	cfg  SMTPConfig
	tpl  *template.Template
	send SendFunc
	now  func() time.Time
}

var bodyTemplate = template.Must(template.New("ready").Parse(`<!doctype html>
<html><body>
<p>Hello {{.Name}},</p>
<p>Thank you for your order! Your digital product is ready to download:</p>
<p><a href="{{.Link}}" target="_blank" style="padding:10px 15px;background:#000;color:#fff;text-decoration:none;">Download your product</a></p>
<p>If the button does not work, copy this link into your browser:<br>{{.Link}}</p>
</body></html>
`))

// NewSMTPNotifier validates cfg and returns a notifier backed by a go-mail
// client. STARTTLS is used when the relay offers it; PLAIN auth is enabled
// when a username is set.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host must not be empty")
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address must not be empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your digital product is ready to download"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	n := &SMTPNotifier{cfg: cfg, tpl: bodyTemplate, now: time.Now}
	n.send = func(ctx context.Context, msg *mail.Msg) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return client.DialAndSendWithContext(ctx, msg)
	}
	return n, nil
}

// Notify renders and sends the message to email.
func (n *SMTPNotifier) Notify(ctx context.Context, email, customerName, link string) error {
	ctx, span := otel.Tracer("notify/SMTPNotifier").Start(ctx, "Notify",
		trace.WithAttributes(attribute.String("smtp.host", n.cfg.Host)),
	)
	defer span.End()

	msg, err := n.Message(email, customerName, link)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Message builds the HTML message for one notification.
func (n *SMTPNotifier) Message(email, customerName, link string) (*mail.Msg, error) {
	if strings.ContainsAny(email, "\r\n") {
		return nil, errors.New("invalid recipient address")
	}
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(n.cfg.Subject)
	msg.SetDateWithValue(n.now())
	if err := msg.SetBodyHTMLTemplate(n.tpl, struct{ Name, Link string }{customerName, link}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}
	return msg, nil
}

// LogNotifier writes the notification to the logger instead of sending it.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify logs the recipient and link at info level.
func (n LogNotifier) Notify(_ context.Context, email, customerName, link string) error {
	n.Logger.Info().
		Str("to", email).
		Str("name", customerName).
		Str("link", link).
		Msg("download ready (log notifier)")
	return nil
}
