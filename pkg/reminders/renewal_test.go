package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func newLifecycle() (*Lifecycle, *store.MemoryStore) {
	s := store.NewMemoryStore()
	return NewLifecycle(s, clock.Fixed{At: now}), s
}

func TestCreate_DefaultsAndNormalizesDays(t *testing.T) {
	ctx := context.Background()
	l, _ := newLifecycle()

	r, err := l.Create(ctx, RenewalInput{Title: " Netflix ", RenewalDate: day(10), ExpectedAmount: decimal.NewFromInt(1100)})
	require.NoError(t, err)
	assert.Equal(t, "Netflix", r.Title)
	assert.Equal(t, []int{5, 3, 2, 1}, r.ReminderDays)
	assert.Equal(t, models.ReminderStatusActive, r.Status)

	r, err = l.Create(ctx, RenewalInput{Title: "Showmax", RenewalDate: day(10), ReminderDays: []int{1, 7, 3, 7}})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 3, 1}, r.ReminderDays)
}

func TestCreate_Validation(t *testing.T) {
	l, _ := newLifecycle()
	tests := []struct {
		name string
		in   RenewalInput
	}{
		{"no title", RenewalInput{RenewalDate: day(3)}},
		{"no date", RenewalInput{Title: "DSTV"}},
		{"negative amount", RenewalInput{Title: "DSTV", RenewalDate: day(3), ExpectedAmount: decimal.NewFromInt(-1)}},
		{"past date", RenewalInput{Title: "DSTV", RenewalDate: day(-1)}},
		{"zero offset", RenewalInput{Title: "DSTV", RenewalDate: day(3), ReminderDays: []int{3, 0}}},
		{"empty offsets", RenewalInput{Title: "DSTV", RenewalDate: day(3), ReminderDays: []int{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Create(context.Background(), tt.in)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	l, _ := newLifecycle()
	r, err := l.Create(ctx, RenewalInput{Title: "Spotify", RenewalDate: day(4)})
	require.NoError(t, err)

	cancelled, err := l.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusCancelled, cancelled.Status)

	_, err = l.Cancel(ctx, r.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = l.MarkRenewed(ctx, r.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = l.Cancel(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMarkRenewed_ChainsNextCycle(t *testing.T) {
	ctx := context.Background()
	l, s := newLifecycle()
	r, err := l.Create(ctx, RenewalInput{Title: "Gym", RenewalDate: day(2), ExpectedAmount: decimal.NewFromInt(4500), ReminderDays: []int{7, 2}, Notes: "annual"})
	require.NoError(t, err)

	same := day(2)
	_, err = l.MarkRenewed(ctx, r.ID, &same)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	stored, err := s.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusActive, stored.Status)

	next := day(2).AddDate(1, 0, 0)
	res, err := l.MarkRenewed(ctx, r.ID, &next)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusRenewed, res.Renewed.Status)
	require.NotNil(t, res.Next)
	assert.Equal(t, models.ReminderStatusActive, res.Next.Status)
	assert.Equal(t, "Gym", res.Next.Title)
	assert.Equal(t, []int{7, 2}, res.Next.ReminderDays)
	assert.True(t, res.Next.ExpectedAmount.Equal(decimal.NewFromInt(4500)))
	require.NotNil(t, res.Next.PreviousReminderID)
	assert.Equal(t, r.ID, *res.Next.PreviousReminderID)

	all, err := s.ListReminders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkRenewed_WithoutNext(t *testing.T) {
	ctx := context.Background()
	l, s := newLifecycle()
	r, err := l.Create(ctx, RenewalInput{Title: "Gym", RenewalDate: day(2)})
	require.NoError(t, err)

	res, err := l.MarkRenewed(ctx, r.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Next)

	active, err := s.ListReminders(ctx, models.ReminderStatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestProcessExpiredReminders_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for _, r := range []*models.RenewalReminder{
		{ID: uuid.New(), Title: "Past", RenewalDate: day(-2), ReminderDays: []int{1}, Status: models.ReminderStatusActive},
		{ID: uuid.New(), Title: "Yesterday", RenewalDate: day(-1), ReminderDays: []int{1}, Status: models.ReminderStatusActive},
		{ID: uuid.New(), Title: "Today", RenewalDate: day(0), ReminderDays: []int{1}, Status: models.ReminderStatusActive},
		{ID: uuid.New(), Title: "Cancelled", RenewalDate: day(-5), ReminderDays: []int{1}, Status: models.ReminderStatusCancelled},
	} {
		require.NoError(t, s.CreateReminder(ctx, r))
	}
	l := NewLifecycle(s, clock.Fixed{At: now})

	n, err := l.ProcessExpiredReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	first, err := s.ListReminders(ctx, "")
	require.NoError(t, err)

	n, err = l.ProcessExpiredReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	second, err := s.ListReminders(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	statuses := map[string]models.ReminderStatus{}
	for _, r := range second {
		statuses[r.Title] = r.Status
	}
	assert.Equal(t, models.ReminderStatusExpired, statuses["Past"])
	assert.Equal(t, models.ReminderStatusExpired, statuses["Yesterday"])
	assert.Equal(t, models.ReminderStatusActive, statuses["Today"])
	assert.Equal(t, models.ReminderStatusCancelled, statuses["Cancelled"])
}

func TestList_DerivedFields(t *testing.T) {
	ctx := context.Background()
	l, _ := newLifecycle()
	for _, in := range []RenewalInput{
		{Title: "Today", RenewalDate: day(0)},
		{Title: "Two", RenewalDate: day(2)},
		{Title: "Four", RenewalDate: day(4)},
		{Title: "Five", RenewalDate: day(5)},
		{Title: "Nine", RenewalDate: day(9)},
	} {
		_, err := l.Create(ctx, in)
		require.NoError(t, err)
	}

	views, err := l.List(ctx, models.ReminderStatusActive)
	require.NoError(t, err)
	require.Len(t, views, 5)

	type derived struct {
		days   int
		notify bool
		urg    Urgency
	}
	want := map[string]derived{
		"Today": {0, true, UrgencyToday},
		"Two":   {2, true, UrgencyCritical},
		"Four":  {4, false, UrgencyUrgent},
		"Five":  {5, true, UrgencyUrgent},
		"Nine":  {9, false, UrgencyUpcoming},
	}
	for _, v := range views {
		w := want[v.Title]
		assert.Equal(t, w.days, v.DaysUntilRenewal, v.Title)
		assert.Equal(t, w.notify, v.ShouldNotifyToday, v.Title)
		assert.Equal(t, w.urg, v.Urgency, v.Title)
	}

	_, err = l.List(ctx, models.ReminderStatus("paused"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestUrgencyFor(t *testing.T) {
	assert.Equal(t, UrgencyOverdue, urgencyFor(-1))
	assert.Equal(t, UrgencyToday, urgencyFor(0))
	assert.Equal(t, UrgencyCritical, urgencyFor(1))
	assert.Equal(t, UrgencyCritical, urgencyFor(2))
	assert.Equal(t, UrgencyUrgent, urgencyFor(3))
	assert.Equal(t, UrgencyUrgent, urgencyFor(5))
	assert.Equal(t, UrgencyUpcoming, urgencyFor(6))
}

type recordingNotifier struct {
	sent []Notification
	fail map[string]bool
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.fail[n.Title] {
		return errors.New("push gateway unavailable")
	}
	r.sent = append(r.sent, n)
	return nil
}

func TestNotifyDue(t *testing.T) {
	ctx := context.Background()
	l, _ := newLifecycle()
	for _, in := range []RenewalInput{
		{Title: "Netflix", RenewalDate: day(3), ExpectedAmount: decimal.NewFromInt(1100)},
		{Title: "Showmax", RenewalDate: day(1)},
		{Title: "Spotify", RenewalDate: day(4)},
		{Title: "YouTube", RenewalDate: day(0)},
	} {
		_, err := l.Create(ctx, in)
		require.NoError(t, err)
	}

	n := &recordingNotifier{fail: map[string]bool{"Showmax": true}}
	sent, err := l.NotifyDue(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	titles := []string{}
	for _, s := range n.sent {
		titles = append(titles, s.Title)
	}
	assert.ElementsMatch(t, []string{"Netflix", "YouTube"}, titles)
	for _, s := range n.sent {
		if s.Title == "Netflix" {
			assert.Equal(t, "Netflix renews in 3 days for 1100.00.", s.Message)
		}
	}
}

// racingStore runs after once, right after the next read it intercepts, to stand
// in for another request committing in between.
type racingStore struct {
	*store.MemoryStore
	after func()
}

func (s *racingStore) fire() {
	if f := s.after; f != nil {
		s.after = nil
		f()
	}
}

func (s *racingStore) ListReminders(ctx context.Context, status models.ReminderStatus) ([]*models.RenewalReminder, error) {
	out, err := s.MemoryStore.ListReminders(ctx, status)
	s.fire()
	return out, err
}

func (s *racingStore) GetReminder(ctx context.Context, id uuid.UUID) (*models.RenewalReminder, error) {
	r, err := s.MemoryStore.GetReminder(ctx, id)
	s.fire()
	return r, err
}

func TestProcessExpiredReminders_KeepsConcurrentCancel(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	r := &models.RenewalReminder{ID: uuid.New(), Title: "Spotify", RenewalDate: day(-1), ReminderDays: []int{1}, Status: models.ReminderStatusActive}
	require.NoError(t, mem.CreateReminder(ctx, r))

	user := NewLifecycle(mem, clock.Fixed{At: now})
	s := &racingStore{MemoryStore: mem}
	s.after = func() {
		_, err := user.Cancel(ctx, r.ID)
		require.NoError(t, err)
	}

	n, err := NewLifecycle(s, clock.Fixed{At: now}).ProcessExpiredReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := mem.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusCancelled, got.Status)
}

func TestCancel_LosesToConcurrentExpiry(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	r := &models.RenewalReminder{ID: uuid.New(), Title: "Showmax", RenewalDate: day(-1), ReminderDays: []int{1}, Status: models.ReminderStatusActive}
	require.NoError(t, mem.CreateReminder(ctx, r))

	sweeper := NewLifecycle(mem, clock.Fixed{At: now})
	s := &racingStore{MemoryStore: mem}
	s.after = func() {
		n, err := sweeper.ProcessExpiredReminders(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	_, err := NewLifecycle(s, clock.Fixed{At: now}).Cancel(ctx, r.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "got %v", err)
	assert.Contains(t, apperr.Message(err), "already expired")

	got, err := mem.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusExpired, got.Status)
}
