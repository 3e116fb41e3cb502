// Package reminders tracks "cancel before renewal" reminders and merges them with
// recurring bills and subscriptions into one feed ordered by urgency.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/logger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/statemachine"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Urgency string

const (
	UrgencyOverdue  Urgency = "overdue"
	UrgencyToday    Urgency = "today"
	UrgencyCritical Urgency = "critical"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyUpcoming Urgency = "upcoming"
)

func urgencyFor(days int) Urgency {
	switch {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyToday
	case days <= 2:
		return UrgencyCritical
	case days <= 5:
		return UrgencyUrgent
	default:
		return UrgencyUpcoming
	}
}

// RenewalInput is what the user supplies for a new reminder.
type RenewalInput struct {
	Title          string
	RenewalDate    time.Time
	ExpectedAmount decimal.Decimal
	ReminderDays   []int // nil means models.DefaultReminderDays
	Notes          string
}

// RenewalView is a reminder with the fields derived from today's date.
type RenewalView struct {
	*models.RenewalReminder
	DaysUntilRenewal  int     `json:"days_until_renewal"`
	ShouldNotifyToday bool    `json:"should_notify_today"`
	Urgency           Urgency `json:"urgency"`
}

// RenewResult holds the renewed reminder and, when a next date was given, the
// reminder for the following cycle.
type RenewResult struct {
	Renewed *models.RenewalReminder `json:"renewed"`
	Next    *models.RenewalReminder `json:"next,omitempty"`
}

// Notification is handed to a Notifier for a reminder that fires today.
type Notification struct {
	ReminderID     uuid.UUID       `json:"reminder_id"`
	Title          string          `json:"title"`
	RenewalDate    time.Time       `json:"renewal_date"`
	DaysUntil      int             `json:"days_until"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Urgency        Urgency         `json:"urgency"`
	Message        string          `json:"message"`
}

// Notifier delivers reminder notifications. Delivery failures never fail a sweep.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Lifecycle manages renewal reminders through their state machine.
type Lifecycle struct {
	store store.ReminderStore
	clock clock.Clock
}

func NewLifecycle(s store.ReminderStore, c clock.Clock) *Lifecycle {
	if c == nil {
		c = clock.System{}
	}
	return &Lifecycle{store: s, clock: c}
}

// normalizeDays de-duplicates offsets and sorts them furthest first.
func normalizeDays(days []int) ([]int, error) {
	if days == nil {
		return slices.Clone(models.DefaultReminderDays), nil
	}
	if len(days) == 0 {
		return nil, apperr.Validation("At least one reminder day is required")
	}
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d <= 0 {
			return nil, apperr.Validation("Reminder days must be positive, got %d", d)
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b int) int { return b - a })
	return out, nil
}

func (l *Lifecycle) Create(ctx context.Context, in RenewalInput) (*models.RenewalReminder, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("Title is required")
	}
	if in.RenewalDate.IsZero() {
		return nil, apperr.Validation("Renewal date is required")
	}
	if in.ExpectedAmount.IsNegative() {
		return nil, apperr.Validation("Expected amount cannot be negative")
	}
	if clock.DaysBetween(l.clock.Now(), in.RenewalDate) < 0 {
		return nil, apperr.Validation("Renewal date cannot be in the past")
	}
	days, err := normalizeDays(in.ReminderDays)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	r := &models.RenewalReminder{
		ID:             uuid.New(),
		Title:          title,
		RenewalDate:    in.RenewalDate,
		ExpectedAmount: in.ExpectedAmount,
		ReminderDays:   days,
		Notes:          strings.TrimSpace(in.Notes),
		Status:         models.ReminderStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.CreateReminder(ctx, r); err != nil {
		return nil, apperr.Dependency("failed to store renewal reminder", err)
	}
	logger.Info("renewal reminder created", "reminder_id", r.ID, "title", r.Title, "renewal_date", r.RenewalDate.Format(time.DateOnly))
	return r, nil
}

func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*models.RenewalReminder, error) {
	r, err := l.store.GetReminder(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("failed to load renewal reminder", err)
	}
	return r, nil
}

// Cancel records that the user cancelled the subscription in time.
func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID) (*models.RenewalReminder, error) {
	r, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := statemachine.NewReminderFSM(r).Cancel(ctx); err != nil {
		return nil, err
	}
	if err := l.commit(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("renewal reminder cancelled", "reminder_id", r.ID)
	return r, nil
}

// MarkRenewed closes the reminder as renewed. With a next date it also opens an
// active reminder for the following cycle carrying the same title, amount and offsets.
func (l *Lifecycle) MarkRenewed(ctx context.Context, id uuid.UUID, next *time.Time) (*RenewResult, error) {
	r, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if next != nil && clock.DaysBetween(r.RenewalDate, *next) <= 0 {
		return nil, apperr.Validation("Next renewal date must be after %s", r.RenewalDate.Format(time.DateOnly))
	}
	if err := statemachine.NewReminderFSM(r).Renew(ctx); err != nil {
		return nil, err
	}
	if err := l.commit(ctx, r); err != nil {
		return nil, err
	}

	result := &RenewResult{Renewed: r}
	if next != nil {
		now := l.clock.Now()
		prev := r.ID
		following := &models.RenewalReminder{
			ID:                 uuid.New(),
			Title:              r.Title,
			RenewalDate:        *next,
			ExpectedAmount:     r.ExpectedAmount,
			ReminderDays:       slices.Clone(r.ReminderDays),
			Notes:              r.Notes,
			Status:             models.ReminderStatusActive,
			PreviousReminderID: &prev,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := l.store.CreateReminder(ctx, following); err != nil {
			return nil, apperr.Dependency("failed to store next renewal reminder", err)
		}
		result.Next = following
	}
	logger.Info("renewal reminder renewed", "reminder_id", r.ID, "chained", result.Next != nil)
	return result, nil
}

// ProcessExpiredReminders expires active reminders whose renewal date has passed.
// Running it again on the same day finds nothing left to do. A reminder cancelled or
// renewed after the listing keeps that status and is not counted.
func (l *Lifecycle) ProcessExpiredReminders(ctx context.Context) (int, error) {
	active, err := l.store.ListReminders(ctx, models.ReminderStatusActive)
	if err != nil {
		return 0, apperr.Dependency("failed to list renewal reminders", err)
	}

	today := clock.Today(l.clock)
	var expired int
	var errs []error
	for _, r := range active {
		if clock.DaysBetween(today, r.RenewalDate) >= 0 {
			continue
		}
		if err := statemachine.NewReminderFSM(r).Expire(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		moved, err := l.move(ctx, r, models.ReminderStatusActive)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !moved {
			logger.Debug("renewal reminder changed before it could expire", "reminder_id", r.ID)
			continue
		}
		expired++
	}

	logger.Info("expired renewal reminders processed", "expired", expired, "failed", len(errs))
	if len(errs) > 0 {
		return expired, apperr.Dependency("failed to expire some renewal reminders", errors.Join(errs...))
	}
	return expired, nil
}

// List returns reminders with their derived fields. An empty status lists all.
func (l *Lifecycle) List(ctx context.Context, status models.ReminderStatus) ([]RenewalView, error) {
	switch status {
	case "", models.ReminderStatusActive, models.ReminderStatusCancelled, models.ReminderStatusExpired, models.ReminderStatusRenewed:
	default:
		return nil, apperr.Validation("Unknown reminder status %q", status)
	}
	reminders, err := l.store.ListReminders(ctx, status)
	if err != nil {
		return nil, apperr.Dependency("failed to list renewal reminders", err)
	}
	today := clock.Today(l.clock)
	views := make([]RenewalView, 0, len(reminders))
	for _, r := range reminders {
		views = append(views, viewOf(r, today))
	}
	return views, nil
}

func viewOf(r *models.RenewalReminder, today time.Time) RenewalView {
	days := clock.DaysBetween(today, r.RenewalDate)
	return RenewalView{
		RenewalReminder:   r,
		DaysUntilRenewal:  days,
		ShouldNotifyToday: r.Status == models.ReminderStatusActive && (days == 0 || slices.Contains(r.ReminderDays, days)),
		Urgency:           urgencyFor(days),
	}
}

// NotifyDue hands every active reminder that fires today to n and returns how many
// were delivered.
func (l *Lifecycle) NotifyDue(ctx context.Context, n Notifier) (int, error) {
	views, err := l.List(ctx, models.ReminderStatusActive)
	if err != nil {
		return 0, err
	}
	var sent int
	for _, v := range views {
		if !v.ShouldNotifyToday {
			continue
		}
		note := Notification{
			ReminderID:     v.ID,
			Title:          v.Title,
			RenewalDate:    v.RenewalDate,
			DaysUntil:      v.DaysUntilRenewal,
			ExpectedAmount: v.ExpectedAmount,
			Urgency:        v.Urgency,
			Message:        notificationMessage(v),
		}
		if err := n.Notify(ctx, note); err != nil {
			logger.Warn("renewal notification not delivered", "reminder_id", v.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func notificationMessage(v RenewalView) string {
	if v.DaysUntilRenewal == 0 {
		return fmt.Sprintf("%s renews today for %s. Cancel now if you no longer need it.", v.Title, v.ExpectedAmount.StringFixed(2))
	}
	unit := "days"
	if v.DaysUntilRenewal == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%s renews in %d %s for %s.", v.Title, v.DaysUntilRenewal, unit, v.ExpectedAmount.StringFixed(2))
}

// move stores the status r was moved to, provided the stored reminder is still in from.
func (l *Lifecycle) move(ctx context.Context, r *models.RenewalReminder, from models.ReminderStatus) (bool, error) {
	now := l.clock.Now()
	moved, err := l.store.TransitionReminder(ctx, r.ID, from, r.Status, now)
	if err != nil {
		return false, apperr.Dependency("failed to update renewal reminder", err)
	}
	if moved {
		r.UpdatedAt = now
	}
	return moved, nil
}

// commit stores a transition out of active. Losing to a concurrent transition is
// reported with the status the other request left behind.
func (l *Lifecycle) commit(ctx context.Context, r *models.RenewalReminder) error {
	moved, err := l.move(ctx, r, models.ReminderStatusActive)
	if err != nil || moved {
		return err
	}
	current, err := l.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	return apperr.New(apperr.KindInvalidTransition, "Reminder %q is already %s", current.Title, current.Status)
}
