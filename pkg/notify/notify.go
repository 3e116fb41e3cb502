// Package notify delivers renewal reminder notifications.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/logger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/reminders"
)

// LogNotifier writes each notification to a structured log. It never fails.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier logs through l, or the package logger when l is nil.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Notify(ctx context.Context, note reminders.Notification) error {
	l := n.log
	if l == nil {
		l = logger.Log
	}
	l.InfoContext(ctx, note.Message,
		"reminder_id", note.ReminderID,
		"title", note.Title,
		"renewal_date", note.RenewalDate.Format(time.DateOnly),
		"days_until", note.DaysUntil,
		"urgency", note.Urgency,
		"expected_amount", note.ExpectedAmount.String(),
	)
	return nil
}
