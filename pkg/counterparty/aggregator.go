// Package counterparty rolls loans up per person or lender. Nothing here is stored;
// every figure is recomputed from the loans and today's date on each call.
package counterparty

import (
	"context"
	"sort"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusComplete Status = "complete"
	StatusOverdue  Status = "overdue"
	StatusPartial  Status = "partial"
	StatusPending  Status = "pending"
)

// LoanView is one loan as seen from its counterparty.
type LoanView struct {
	ID          uuid.UUID         `json:"id"`
	Principal   decimal.Decimal   `json:"principal"`
	Repaid      decimal.Decimal   `json:"repaid"`
	Outstanding decimal.Decimal   `json:"outstanding"`
	Status      models.LoanStatus `json:"status"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	IsOverdue   bool              `json:"is_overdue"`
	DaysOverdue int               `json:"days_overdue"`
}

// Counterparty is the rollup of every loan with one name in one direction.
type Counterparty struct {
	Name             string           `json:"name"`
	Direction        models.Direction `json:"direction"`
	TotalPrincipal   decimal.Decimal  `json:"total_principal"`
	TotalRepaid      decimal.Decimal  `json:"total_repaid"`
	TotalOutstanding decimal.Decimal  `json:"total_outstanding"`
	LoanCount        int              `json:"loan_count"`
	ActiveLoans      int              `json:"active_loans"`
	IsOverdue        bool             `json:"is_overdue"`
	MaxDaysOverdue   int              `json:"max_days_overdue"`
	Status           Status           `json:"status"`
	Loans            []LoanView       `json:"loans"`
}

// Summary totals one direction across all counterparties.
type Summary struct {
	Direction          models.Direction `json:"direction"`
	TotalPrincipal     decimal.Decimal  `json:"total_principal"`
	TotalRepaid        decimal.Decimal  `json:"total_repaid"`
	TotalOutstanding   decimal.Decimal  `json:"total_outstanding"`
	TotalForgiven      decimal.Decimal  `json:"total_forgiven"`
	Counterparties     int              `json:"counterparties"`
	ActiveLoans        int              `json:"active_loans"`
	OverdueLoans       int              `json:"overdue_loans"`
	OverdueOutstanding decimal.Decimal  `json:"overdue_outstanding"`
}

func viewOf(loan *models.Loan, today time.Time) LoanView {
	v := LoanView{
		ID:        loan.ID,
		Principal: loan.Principal,
		Repaid:    loan.AmountRepaid,
		Status:    loan.Status,
		DueDate:   loan.DueDate,
	}
	if loan.IsActive() {
		v.Outstanding = loan.Outstanding()
	}
	if loan.IsActive() && loan.DueDate != nil {
		if days := clock.DaysBetween(*loan.DueDate, today); days > 0 {
			v.IsOverdue = true
			v.DaysOverdue = days
		}
	}
	return v
}

// Summarize groups loans of one direction by exact counterparty name. Loans of the
// other direction are ignored.
func Summarize(loans []*models.Loan, direction models.Direction, today time.Time) []Counterparty {
	byName := make(map[string]*Counterparty)
	var names []string

	for _, loan := range loans {
		if loan.Direction != direction {
			continue
		}
		c, ok := byName[loan.Counterparty]
		if !ok {
			c = &Counterparty{
				Name:             loan.Counterparty,
				Direction:        direction,
				TotalPrincipal:   decimal.Zero,
				TotalRepaid:      decimal.Zero,
				TotalOutstanding: decimal.Zero,
			}
			byName[loan.Counterparty] = c
			names = append(names, loan.Counterparty)
		}

		v := viewOf(loan, today)
		c.Loans = append(c.Loans, v)
		c.LoanCount++
		c.TotalPrincipal = c.TotalPrincipal.Add(v.Principal)
		c.TotalRepaid = c.TotalRepaid.Add(v.Repaid)
		c.TotalOutstanding = c.TotalOutstanding.Add(v.Outstanding)
		if loan.IsActive() {
			c.ActiveLoans++
		}
		if v.IsOverdue {
			c.IsOverdue = true
			if v.DaysOverdue > c.MaxDaysOverdue {
				c.MaxDaysOverdue = v.DaysOverdue
			}
		}
	}

	result := make([]Counterparty, 0, len(names))
	for _, name := range names {
		c := byName[name]
		c.Status = statusOf(c)
		result = append(result, *c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.IsOverdue != b.IsOverdue {
			return a.IsOverdue
		}
		if cmp := a.TotalOutstanding.Cmp(b.TotalOutstanding); cmp != 0 {
			return cmp > 0
		}
		return a.Name < b.Name
	})
	return result
}

// statusOf applies complete > overdue > partial > pending.
func statusOf(c *Counterparty) Status {
	switch {
	case !c.TotalOutstanding.IsPositive():
		return StatusComplete
	case c.IsOverdue:
		return StatusOverdue
	case c.TotalRepaid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

// Totals summarizes one direction. Forgiven remainders are reported on their own.
func Totals(loans []*models.Loan, direction models.Direction, today time.Time) Summary {
	s := Summary{
		Direction:          direction,
		TotalPrincipal:     decimal.Zero,
		TotalRepaid:        decimal.Zero,
		TotalOutstanding:   decimal.Zero,
		TotalForgiven:      decimal.Zero,
		OverdueOutstanding: decimal.Zero,
	}
	names := make(map[string]struct{})
	for _, loan := range loans {
		if loan.Direction != direction {
			continue
		}
		names[loan.Counterparty] = struct{}{}
		v := viewOf(loan, today)
		s.TotalPrincipal = s.TotalPrincipal.Add(v.Principal)
		s.TotalRepaid = s.TotalRepaid.Add(v.Repaid)
		s.TotalOutstanding = s.TotalOutstanding.Add(v.Outstanding)
		if loan.Status == models.LoanStatusForgiven {
			s.TotalForgiven = s.TotalForgiven.Add(loan.Outstanding())
		}
		if loan.IsActive() {
			s.ActiveLoans++
		}
		if v.IsOverdue {
			s.OverdueLoans++
			s.OverdueOutstanding = s.OverdueOutstanding.Add(v.Outstanding)
		}
	}
	s.Counterparties = len(names)
	return s
}

// Aggregator reads loans from the store and summarizes them against the clock.
type Aggregator struct {
	loans store.LoanStore
	clock clock.Clock
}

func NewAggregator(loans store.LoanStore, c clock.Clock) *Aggregator {
	if c == nil {
		c = clock.System{}
	}
	return &Aggregator{loans: loans, clock: c}
}

func (a *Aggregator) load(ctx context.Context, direction models.Direction) ([]*models.Loan, error) {
	if !direction.Valid() {
		return nil, apperr.Validation("Unknown loan direction %q", direction)
	}
	loans, err := a.loans.ListLoans(ctx, direction)
	if err != nil {
		return nil, apperr.Dependency("failed to list loans", err)
	}
	return loans, nil
}

// Counterparties returns the rollups for one direction, overdue first.
func (a *Aggregator) Counterparties(ctx context.Context, direction models.Direction) ([]Counterparty, error) {
	loans, err := a.load(ctx, direction)
	if err != nil {
		return nil, err
	}
	return Summarize(loans, direction, clock.Today(a.clock)), nil
}

func (a *Aggregator) Totals(ctx context.Context, direction models.Direction) (Summary, error) {
	loans, err := a.load(ctx, direction)
	if err != nil {
		return Summary{}, err
	}
	return Totals(loans, direction, clock.Today(a.clock)), nil
}
