package statemachine

import (
	"context"
	"errors"
	"testing"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoan(principal int64) *models.Loan {
	return &models.Loan{
		Principal:    decimal.NewFromInt(principal),
		AmountRepaid: decimal.Zero,
		Status:       models.LoanStatusPending,
	}
}

func TestLoanFSM_PendingPartialComplete(t *testing.T) {
	ctx := context.Background()
	loan := newLoan(1000)
	m := NewLoanFSM(loan)

	require.NoError(t, m.ApplyRepayment(ctx, decimal.NewFromInt(400)))
	assert.Equal(t, models.LoanStatusPartial, loan.Status)

	require.NoError(t, m.ApplyRepayment(ctx, decimal.NewFromInt(700)))
	assert.Equal(t, models.LoanStatusPartial, loan.Status)
	assert.True(t, loan.AmountRepaid.Equal(decimal.NewFromInt(700)))

	require.NoError(t, m.ApplyRepayment(ctx, decimal.NewFromInt(1000)))
	assert.Equal(t, models.LoanStatusComplete, loan.Status)

	err := m.ApplyRepayment(ctx, decimal.NewFromInt(1000))
	assert.Error(t, err)
	assert.False(t, m.Can(EventForgive))
}

func TestLoanFSM_RejectsOverPrincipal(t *testing.T) {
	loan := newLoan(100)
	err := NewLoanFSM(loan).ApplyRepayment(context.Background(), decimal.NewFromInt(101))

	assert.Error(t, err)
	assert.Equal(t, models.LoanStatusPending, loan.Status)
	assert.True(t, loan.AmountRepaid.IsZero())
}

func TestLoanFSM_ForgiveIsTerminal(t *testing.T) {
	ctx := context.Background()
	loan := newLoan(500)
	m := NewLoanFSM(loan)

	require.NoError(t, m.Forgive(ctx))
	assert.Equal(t, models.LoanStatusForgiven, loan.Status)

	assert.Error(t, m.Forgive(ctx))
	assert.Error(t, m.ApplyRepayment(ctx, decimal.NewFromInt(100)))
	assert.True(t, loan.AmountRepaid.IsZero())
}

func TestReminderFSM_Transitions(t *testing.T) {
	tests := []struct {
		name string
		fire func(*ReminderFSM, context.Context) error
		want models.ReminderStatus
	}{
		{"cancel", (*ReminderFSM).Cancel, models.ReminderStatusCancelled},
		{"expire", (*ReminderFSM).Expire, models.ReminderStatusExpired},
		{"renew", (*ReminderFSM).Renew, models.ReminderStatusRenewed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := &models.RenewalReminder{Title: "Showmax", Status: models.ReminderStatusActive}
			m := NewReminderFSM(r)

			require.NoError(t, tt.fire(m, ctx))
			assert.Equal(t, tt.want, r.Status)

			err := tt.fire(m, ctx)
			assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
			assert.Equal(t, tt.want, r.Status)
		})
	}
}

func TestReminderFSM_TerminalStatesRejectEverything(t *testing.T) {
	r := &models.RenewalReminder{Title: "DSTV", Status: models.ReminderStatusCancelled}
	m := NewReminderFSM(r)

	assert.True(t, errors.Is(m.Renew(context.Background()), apperr.ErrInvalidTransition))
	assert.True(t, errors.Is(m.Expire(context.Background()), apperr.ErrInvalidTransition))
	assert.Equal(t, models.ReminderStatusCancelled, m.Current())
}
