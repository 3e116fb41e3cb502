package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createAccount(t *testing.T, s *SQLiteStore, name string, balance int64) *models.Account {
	t.Helper()
	a := &models.Account{
		ID:        uuid.New(),
		Name:      name,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func TestSQLiteStore_AccountsAndDeltas(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAccount(t, s, "M-Pesa", 1500)

	require.NoError(t, s.ApplyDelta(ctx, a.ID, decimal.NewFromInt(-1000)))
	require.NoError(t, s.ApplyDelta(ctx, a.ID, decimal.RequireFromString("0.25")))

	balance, err := s.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("500.25")), "got %s", balance)

	err = s.ApplyDelta(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSQLiteStore_ConcurrentDeltas(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAccount(t, s, "Bank", 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.ApplyDelta(ctx, a.ID, decimal.NewFromInt(5)))
		}()
	}
	wg.Wait()

	balance, err := s.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "got %s", balance)
}

func TestSQLiteStore_SystemAccountIsCreatedOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	first, err := s.SystemAccount(ctx, models.SystemKindBadDebt, "Bad Debt", created)
	require.NoError(t, err)
	second, err := s.SystemAccount(ctx, models.SystemKindBadDebt, "Bad Debt", created.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsSystem)
	assert.True(t, second.CreatedAt.Equal(created), "got %s", second.CreatedAt)
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	source := createAccount(t, s, "M-Pesa", 2000)
	settlement := createAccount(t, s, "Equity", 0)

	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	loan := &models.Loan{
		ID:                  uuid.New(),
		Direction:           models.DirectionLent,
		Counterparty:        "Jane",
		Principal:           decimal.NewFromInt(1000),
		AmountRepaid:        decimal.Zero,
		OriginationDate:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		DueDate:             &due,
		InterestRate:        decimal.NewNullDecimal(decimal.RequireFromString("0.05")),
		Status:              models.LoanStatusPending,
		SourceAccountID:     source.ID,
		SettlementAccountID: &settlement.ID,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
	require.NoError(t, s.CreateLoan(ctx, loan))

	fetched, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", fetched.Counterparty)
	assert.Equal(t, models.DirectionLent, fetched.Direction)
	assert.True(t, fetched.Principal.Equal(loan.Principal))
	require.NotNil(t, fetched.DueDate)
	assert.True(t, fetched.DueDate.Equal(due))
	require.NotNil(t, fetched.SettlementAccountID)
	assert.Equal(t, settlement.ID, *fetched.SettlementAccountID)
	assert.True(t, fetched.InterestRate.Valid)

	prev := *fetched
	fetched.AmountRepaid = decimal.NewFromInt(400)
	fetched.Status = models.LoanStatusPartial
	fetched.Notes = "[2026-10-05] Repayment of 400"
	require.NoError(t, s.UpdateLoan(ctx, fetched, &prev))

	stale := *fetched
	stale.AmountRepaid = decimal.NewFromInt(900)
	err = s.UpdateLoan(ctx, &stale, &prev)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	updated, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusPartial, updated.Status)
	assert.True(t, updated.AmountRepaid.Equal(decimal.NewFromInt(400)))

	lent, err := s.ListLoans(ctx, models.DirectionLent)
	require.NoError(t, err)
	assert.Len(t, lent, 1)
	borrowed, err := s.ListLoans(ctx, models.DirectionBorrowed)
	require.NoError(t, err)
	assert.Empty(t, borrowed)

	_, err = s.GetLoan(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSQLiteStore_TransactionsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	source := createAccount(t, s, "M-Pesa", 100)

	loanID := uuid.New()
	require.NoError(t, s.CreateLoan(ctx, &models.Loan{
		ID:              loanID,
		Direction:       models.DirectionLent,
		Counterparty:    "test",
		Principal:       decimal.NewFromInt(100),
		AmountRepaid:    decimal.Zero,
		OriginationDate: time.Now(),
		Status:          models.LoanStatusPending,
		SourceAccountID: source.ID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}))

	for _, kind := range []models.TransactionKind{models.TransactionKindLending, models.TransactionKindTransactionFee} {
		require.NoError(t, s.AppendTransaction(ctx, &models.Transaction{
			ID:            uuid.New(),
			FromAccountID: &source.ID,
			Amount:        decimal.NewFromInt(50),
			Kind:          kind,
			ReferenceID:   loanID,
			ReferenceType: models.ReferenceTypeLoan,
			Date:          time.Now(),
			CreatedAt:     time.Now(),
		}))
	}

	txs, err := s.ListByReference(ctx, loanID, models.ReferenceTypeLoan)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionKindLending, txs[0].Kind)
	assert.Equal(t, models.TransactionKindTransactionFee, txs[1].Kind)
	require.NotNil(t, txs[0].FromAccountID)
	assert.Equal(t, source.ID, *txs[0].FromAccountID)
	assert.Nil(t, txs[0].ToAccountID)

	require.NoError(t, s.DeleteLoan(ctx, loanID))

	txs, err = s.ListByReference(ctx, loanID, models.ReferenceTypeLoan)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.True(t, errors.Is(s.DeleteLoan(ctx, loanID), apperr.ErrNotFound))
}

func TestSQLiteStore_Reminders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := &models.RenewalReminder{
		ID:             uuid.New(),
		Title:          "Netflix annual",
		RenewalDate:    time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		ExpectedAmount: decimal.NewFromInt(1100),
		ReminderDays:   []int{5, 3, 2, 1},
		Status:         models.ReminderStatusActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, s.CreateReminder(ctx, r))

	got, err := s.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 2, 1}, got.ReminderDays)
	assert.Nil(t, got.PreviousReminderID)

	at := time.Date(2026, 11, 20, 8, 0, 0, 0, time.UTC)
	moved, err := s.TransitionReminder(ctx, r.ID, models.ReminderStatusActive, models.ReminderStatusCancelled, at)
	require.NoError(t, err)
	assert.True(t, moved)

	// Already cancelled, so an expiry must not overwrite it.
	moved, err = s.TransitionReminder(ctx, r.ID, models.ReminderStatusActive, models.ReminderStatusExpired, at)
	require.NoError(t, err)
	assert.False(t, moved)

	got, err = s.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusCancelled, got.Status)
	assert.True(t, got.UpdatedAt.Equal(at))

	_, err = s.TransitionReminder(ctx, uuid.New(), models.ReminderStatusActive, models.ReminderStatusExpired, at)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	active, err := s.ListReminders(ctx, models.ReminderStatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := s.ListReminders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_ListActiveObligations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	today := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	mk := func(title string, kind models.ObligationKind, days int, active bool) {
		require.NoError(t, s.CreateObligation(ctx, &models.Obligation{
			ID:          uuid.New(),
			Title:       title,
			Amount:      decimal.NewFromInt(100),
			NextDueDate: today.AddDate(0, 0, days),
			Frequency:   models.FrequencyMonthly,
			Kind:        kind,
			IsActive:    active,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}))
	}
	mk("KPLC", models.ObligationKindBill, 2, true)
	mk("Rent", models.ObligationKindBill, -1, true)
	mk("Spotify", models.ObligationKindSubscription, 10, true)
	mk("Gym", models.ObligationKindSubscription, 40, true)
	mk("Old bill", models.ObligationKindBill, 1, false)

	all, err := s.ListActive(ctx, "", 30, today)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Rent", all[0].Title)
	assert.Equal(t, "KPLC", all[1].Title)
	assert.Equal(t, "Spotify", all[2].Title)

	bills, err := s.ListActive(ctx, models.ObligationKindBill, 30, today)
	require.NoError(t, err)
	assert.Len(t, bills, 2)
}
