package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/wneessen/go-mail"

	jobmetrics "github.com/storeadmin/storeadmin/internal/jobs"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPSender delivers mail through an SMTP relay such as Mailpit. STARTTLS is
// used when the relay offers it; credentials are optional.
type SMTPSender struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

// Send builds msg and hands it to the relay. Addresses the relay could never
// accept are not retried.
func (s SMTPSender) Send(ctx context.Context, msg SendEmailPayload) error {
	m, err := s.message(msg)
	if err != nil {
		return fmt.Errorf("jobs: build email: %v: %w", err, asynq.SkipRetry)
	}
	client, err := mail.NewClient(s.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("jobs: smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("jobs: smtp send: %w", err)
	}
	return nil
}

func (s SMTPSender) message(msg SendEmailPayload) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.From); err != nil {
		return nil, err
	}
	if err := m.To(msg.To); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	return opts
}

// EmailJob handles TaskTypeSendEmail tasks.
type EmailJob struct {
	sender  Sender
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewEmailJob constructs the send-email handler.
func NewEmailJob(sender Sender, metrics *jobmetrics.Metrics, logger *slog.Logger) *EmailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailJob{sender: sender, metrics: metrics, logger: logger}
}

// Handle processes a single task. Malformed payloads are not retried.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("mail_send")
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("jobs: decode email payload: %v: %w", err, asynq.SkipRetry))
	}
	if strings.TrimSpace(payload.To) == "" {
		return tracker.End(fmt.Errorf("jobs: email without recipient: %w", asynq.SkipRetry))
	}
	if err := j.sender.Send(ctx, payload); err != nil {
		j.logger.Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return tracker.End(nil)
}
