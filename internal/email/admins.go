package email

import (
	"context"
	"encoding/json"
	"fmt"
	netmail "net/mail"

	"github.com/eugenenazirov/coursehub/internal/config"
	"github.com/eugenenazirov/coursehub/internal/tasks"
)

// SendTask is the task name under which queued messages are delivered.
const SendTask = "email.send"

// Enqueuer schedules a background task.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, args any) (string, error)
}

// AdminNotifier mails server errors to the configured admins.
type AdminNotifier struct {
	recipients []string
	from       string
	prefix     string
	enqueuer   Enqueuer
}

// NewAdminNotifier returns a notifier for admins. With no admins every
// notification is a no-op.
func NewAdminNotifier(cfg config.Email, admins []config.Contact, enqueuer Enqueuer) *AdminNotifier {
	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		addr := netmail.Address{Name: admin.Name, Address: admin.Email}
		recipients = append(recipients, addr.String())
	}
	return &AdminNotifier{
		recipients: recipients,
		from:       cfg.ServerEmail,
		prefix:     cfg.SubjectPrefix,
		enqueuer:   enqueuer,
	}
}

// NotifyError queues one message addressed to every admin.
func (n *AdminNotifier) NotifyError(ctx context.Context, subject, detail string) error {
	if n == nil || len(n.recipients) == 0 || n.enqueuer == nil {
		return nil
	}

	msg := Message{
		From:    n.from,
		To:      n.recipients,
		Subject: n.prefix + subject,
		Body:    detail,
	}
	if _, err := n.enqueuer.Enqueue(ctx, SendTask, msg); err != nil {
		return fmt.Errorf("queue admin notification: %w", err)
	}
	return nil
}

// SendTaskHandler delivers queued messages through sender.
func SendTaskHandler(sender Sender) tasks.HandlerFunc {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var msg Message
		if err := json.Unmarshal(args, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if err := sender.Send(ctx, msg); err != nil {
			return nil, err
		}
		return map[string]int{"sent": len(msg.To)}, nil
	}
}
