package counterparty

import (
	"context"
	"testing"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	d := today.AddDate(0, 0, -n)
	return &d
}

func loan(name string, dir models.Direction, principal, repaid int64, status models.LoanStatus, due *time.Time) *models.Loan {
	return &models.Loan{
		ID:              uuid.New(),
		Direction:       dir,
		Counterparty:    name,
		Principal:       decimal.NewFromInt(principal),
		AmountRepaid:    decimal.NewFromInt(repaid),
		Status:          status,
		DueDate:         due,
		OriginationDate: today.AddDate(0, -2, 0),
	}
}

func TestSummarize_OverdueUsesLargestGap(t *testing.T) {
	loans := []*models.Loan{
		loan("Jane", models.DirectionLent, 1000, 0, models.LoanStatusPending, daysAgo(4)),
		loan("Jane", models.DirectionLent, 500, 100, models.LoanStatusPartial, daysAgo(11)),
		loan("Jane", models.DirectionLent, 300, 0, models.LoanStatusPending, daysAgo(-5)),
	}

	got := Summarize(loans, models.DirectionLent, today)
	require.Len(t, got, 1)

	jane := got[0]
	assert.True(t, jane.IsOverdue)
	assert.Equal(t, 11, jane.MaxDaysOverdue)
	assert.Equal(t, StatusOverdue, jane.Status)
	assert.Equal(t, 3, jane.LoanCount)
	assert.Equal(t, 3, jane.ActiveLoans)
	assert.True(t, jane.TotalPrincipal.Equal(decimal.NewFromInt(1800)))
	assert.True(t, jane.TotalRepaid.Equal(decimal.NewFromInt(100)))
	assert.True(t, jane.TotalOutstanding.Equal(decimal.NewFromInt(1700)))
	assert.False(t, jane.Loans[2].IsOverdue)
}

func TestSummarize_DueTodayIsNotOverdue(t *testing.T) {
	got := Summarize([]*models.Loan{
		loan("Otieno", models.DirectionLent, 100, 0, models.LoanStatusPending, daysAgo(0)),
	}, models.DirectionLent, today.Add(23*time.Hour))

	require.Len(t, got, 1)
	assert.False(t, got[0].IsOverdue)
	assert.Equal(t, StatusPending, got[0].Status)
}

func TestSummarize_ZeroOutstandingIsComplete(t *testing.T) {
	loans := []*models.Loan{
		loan("Wanjiru", models.DirectionLent, 200, 200, models.LoanStatusComplete, daysAgo(30)),
		loan("Wanjiru", models.DirectionLent, 300, 300, models.LoanStatusComplete, nil),
		loan("Wanjiru", models.DirectionLent, 400, 150, models.LoanStatusForgiven, daysAgo(60)),
	}

	got := Summarize(loans, models.DirectionLent, today)
	require.Len(t, got, 1)
	assert.Equal(t, StatusComplete, got[0].Status)
	assert.False(t, got[0].IsOverdue)
	assert.Zero(t, got[0].ActiveLoans)
	assert.True(t, got[0].TotalOutstanding.IsZero())
	assert.True(t, got[0].TotalRepaid.Equal(decimal.NewFromInt(650)))
}

func TestSummarize_StatusPrecedence(t *testing.T) {
	loans := []*models.Loan{
		loan("Partial", models.DirectionLent, 100, 40, models.LoanStatusPartial, nil),
		loan("Pending", models.DirectionLent, 100, 0, models.LoanStatusPending, nil),
	}
	got := Summarize(loans, models.DirectionLent, today)

	byName := map[string]Status{}
	for _, c := range got {
		byName[c.Name] = c.Status
	}
	assert.Equal(t, StatusPartial, byName["Partial"])
	assert.Equal(t, StatusPending, byName["Pending"])
}

func TestSummarize_Ordering(t *testing.T) {
	loans := []*models.Loan{
		loan("Small", models.DirectionLent, 100, 0, models.LoanStatusPending, nil),
		loan("Big", models.DirectionLent, 5000, 0, models.LoanStatusPending, nil),
		loan("Late", models.DirectionLent, 50, 0, models.LoanStatusPending, daysAgo(2)),
		loan("Also", models.DirectionLent, 100, 0, models.LoanStatusPending, nil),
		loan("Sacco", models.DirectionBorrowed, 9000, 0, models.LoanStatusPending, nil),
	}

	got := Summarize(loans, models.DirectionLent, today)
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Late", "Big", "Also", "Small"}, names)
}

func TestSummarize_NamesAreCaseSensitive(t *testing.T) {
	loans := []*models.Loan{
		loan("jane", models.DirectionLent, 100, 0, models.LoanStatusPending, nil),
		loan("Jane", models.DirectionLent, 100, 0, models.LoanStatusPending, nil),
	}
	assert.Len(t, Summarize(loans, models.DirectionLent, today), 2)
}

func TestTotals(t *testing.T) {
	loans := []*models.Loan{
		loan("Jane", models.DirectionLent, 1000, 400, models.LoanStatusPartial, daysAgo(3)),
		loan("Jane", models.DirectionLent, 200, 200, models.LoanStatusComplete, nil),
		loan("Otieno", models.DirectionLent, 500, 100, models.LoanStatusForgiven, nil),
		loan("Sacco", models.DirectionBorrowed, 9000, 0, models.LoanStatusPending, nil),
	}

	s := Totals(loans, models.DirectionLent, today)
	assert.Equal(t, 2, s.Counterparties)
	assert.Equal(t, 1, s.ActiveLoans)
	assert.Equal(t, 1, s.OverdueLoans)
	assert.True(t, s.TotalPrincipal.Equal(decimal.NewFromInt(1700)))
	assert.True(t, s.TotalRepaid.Equal(decimal.NewFromInt(700)))
	assert.True(t, s.TotalOutstanding.Equal(decimal.NewFromInt(600)))
	assert.True(t, s.TotalForgiven.Equal(decimal.NewFromInt(400)))
	assert.True(t, s.OverdueOutstanding.Equal(decimal.NewFromInt(600)))
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for _, l := range []*models.Loan{
		loan("Jane", models.DirectionLent, 1000, 0, models.LoanStatusPending, daysAgo(1)),
		loan("KCB", models.DirectionBorrowed, 20000, 5000, models.LoanStatusPartial, nil),
	} {
		require.NoError(t, s.CreateLoan(ctx, l))
	}
	a := NewAggregator(s, clock.Fixed{At: today.Add(9 * time.Hour)})

	lent, err := a.Counterparties(ctx, models.DirectionLent)
	require.NoError(t, err)
	require.Len(t, lent, 1)
	assert.Equal(t, "Jane", lent[0].Name)
	assert.Equal(t, 1, lent[0].MaxDaysOverdue)

	borrowed, err := a.Totals(ctx, models.DirectionBorrowed)
	require.NoError(t, err)
	assert.True(t, borrowed.TotalOutstanding.Equal(decimal.NewFromInt(15000)))

	_, err = a.Counterparties(ctx, models.Direction("gifted"))
	assert.Error(t, err)
}
