package statemachine

import (
	"context"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/looplab/fsm"
)

const (
	EventCancel = "cancel"
	EventExpire = "expire"
	EventRenew  = "renew"
)

// ReminderFSM wraps a renewal reminder. Every transition leaves active and every
// destination is terminal.
type ReminderFSM struct {
	reminder *models.RenewalReminder
	fsm      *fsm.FSM
}

func NewReminderFSM(r *models.RenewalReminder) *ReminderFSM {
	active := []string{string(models.ReminderStatusActive)}

	rfsm := &ReminderFSM{reminder: r}
	rfsm.fsm = fsm.NewFSM(
		string(r.Status),
		fsm.Events{
			{Name: EventCancel, Src: active, Dst: string(models.ReminderStatusCancelled)},
			{Name: EventExpire, Src: active, Dst: string(models.ReminderStatusExpired)},
			{Name: EventRenew, Src: active, Dst: string(models.ReminderStatusRenewed)},
		},
		fsm.Callbacks{},
	)
	return rfsm
}

// Cancel records that the user cancelled the subscription before renewal.
func (r *ReminderFSM) Cancel(ctx context.Context) error {
	return r.fire(ctx, EventCancel, "cancelled")
}

// Expire marks a reminder whose renewal date passed without action.
func (r *ReminderFSM) Expire(ctx context.Context) error {
	return r.fire(ctx, EventExpire, "expired")
}

// Renew marks the subscription as renewed.
func (r *ReminderFSM) Renew(ctx context.Context) error {
	return r.fire(ctx, EventRenew, "renewed")
}

func (r *ReminderFSM) fire(ctx context.Context, event, verb string) error {
	if !r.fsm.Can(event) {
		return apperr.New(apperr.KindInvalidTransition,
			"Reminder %q is %s; only active reminders can be %s", r.reminder.Title, r.reminder.Status, verb)
	}
	if err := r.fsm.Event(ctx, event); err != nil {
		return apperr.New(apperr.KindInvalidTransition, "Reminder %q could not be %s: %v", r.reminder.Title, verb, err)
	}
	r.reminder.Status = models.ReminderStatus(r.fsm.Current())
	return nil
}

// Current returns the current state
func (r *ReminderFSM) Current() models.ReminderStatus {
	return models.ReminderStatus(r.fsm.Current())
}
