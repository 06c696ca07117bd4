package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// ConfirmationEmail builds the message sent after a customer signs up.
func ConfirmationEmail(to, name, publicURL string) SendEmailPayload {
	if name = strings.TrimSpace(name); name == "" {
		name = to
	}
	link := strings.TrimSuffix(publicURL, "/") + "/dashboard"
	return SendEmailPayload{
		To:      to,
		Subject: "Welcome, your account is ready",
		Body: fmt.Sprintf("Hi %s,\n\nThanks for signing up. Your account is active and you can reach your dashboard at %s.\n",
			name, link),
	}
}
