package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/reminders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Notify(context.Background(), reminders.Notification{
		ReminderID:     uuid.New(),
		Title:          "Netflix",
		RenewalDate:    time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		DaysUntil:      3,
		ExpectedAmount: decimal.NewFromInt(1100),
		Urgency:        reminders.UrgencyUrgent,
		Message:        "Netflix renews in 3 days for 1100.00.",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"Netflix renews in 3 days for 1100.00."`)
	assert.Contains(t, out, `"renewal_date":"2026-10-18"`)
	assert.Contains(t, out, `"urgency":"urgent"`)
}
