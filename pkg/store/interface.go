package store

import (
	"context"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStore owns account balances. ApplyDelta must be atomic per account.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	// SystemAccount returns the system account of the given kind, creating it on first
	// use with the given creation time.
	SystemAccount(ctx context.Context, kind, name string, createdAt time.Time) (*models.Account, error)
}

// TransactionLog is append-only; it is never read back to compute balances.
type TransactionLog interface {
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	ListByReference(ctx context.Context, referenceID uuid.UUID, referenceType string) ([]*models.Transaction, error)
}

type LoanStore interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	// UpdateLoan saves loan only while the stored amount repaid and status still match
	// prev. Otherwise it writes nothing and returns an apperr.KindConflict error.
	UpdateLoan(ctx context.Context, loan, prev *models.Loan) error
	// DeleteLoan removes the loan and every transaction referencing it as one unit.
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	ListLoans(ctx context.Context, direction models.Direction) ([]*models.Loan, error)
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, r *models.RenewalReminder) error
	GetReminder(ctx context.Context, id uuid.UUID) (*models.RenewalReminder, error)
	// TransitionReminder moves a reminder from one status to another. It reports false
	// and writes nothing when the reminder is no longer in from.
	TransitionReminder(ctx context.Context, id uuid.UUID, from, to models.ReminderStatus, at time.Time) (bool, error)
	ListReminders(ctx context.Context, status models.ReminderStatus) ([]*models.RenewalReminder, error)
}

// ObligationStore is the recurring bill/subscription source.
type ObligationStore interface {
	CreateObligation(ctx context.Context, o *models.Obligation) error
	GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error)
	UpdateObligation(ctx context.Context, o *models.Obligation) error
	// ListActive returns active obligations due on or before today+withinDays,
	// overdue ones included. An empty kind means every kind.
	ListActive(ctx context.Context, kind models.ObligationKind, withinDays int, today time.Time) ([]*models.Obligation, error)
}

// Storage is everything the services need from a backend.
type Storage interface {
	AccountStore
	TransactionLog
	LoanStore
	ReminderStore
	ObligationStore

	Close() error
}

func loanChanged(id uuid.UUID) error {
	return apperr.New(apperr.KindConflict, "Loan %s was changed by another request", id)
}
