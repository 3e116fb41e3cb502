package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReminderStatus string

const (
	ReminderStatusActive    ReminderStatus = "active"
	ReminderStatusCancelled ReminderStatus = "cancelled"
	ReminderStatusExpired   ReminderStatus = "expired"
	ReminderStatusRenewed   ReminderStatus = "renewed"
)

// DefaultReminderDays are the day offsets before renewal when a reminder fires.
var DefaultReminderDays = []int{5, 3, 2, 1}

// RenewalReminder asks the user to act (usually cancel) before a recurring charge renews.
type RenewalReminder struct {
	ID                 uuid.UUID       `json:"id"`
	Title              string          `json:"title"`
	RenewalDate        time.Time       `json:"renewal_date"`
	ExpectedAmount     decimal.Decimal `json:"expected_amount"`
	ReminderDays       []int           `json:"reminder_days"`
	Notes              string          `json:"notes"`
	Status             ReminderStatus  `json:"status"`
	PreviousReminderID *uuid.UUID      `json:"previous_reminder_id,omitempty"` // set on a record spawned by renewal
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type ObligationKind string

const (
	ObligationKindBill         ObligationKind = "bill"
	ObligationKindSubscription ObligationKind = "subscription"
)

func (k ObligationKind) Valid() bool {
	return k == ObligationKindBill || k == ObligationKindSubscription
}

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Obligation is a recurring bill or subscription with a rolling next due date.
type Obligation struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	NextDueDate time.Time       `json:"next_due_date"`
	Frequency   Frequency       `json:"frequency"`
	Kind        ObligationKind  `json:"kind"`
	IsActive    bool            `json:"is_active"`
	LastPaidAt  *time.Time      `json:"last_paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
