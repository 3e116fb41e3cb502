package statemachine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/looplab/fsm"
	"github.com/shopspring/decimal"
)

const (
	EventRepayPartial = "repay_partial"
	EventRepayFull    = "repay_full"
	EventForgive      = "forgive"
)

// LoanFSM wraps a loan with its status machine. The same machine serves lent and
// borrowed loans; direction only changes which accounts the ledger touches.
type LoanFSM struct {
	loan *models.Loan
	fsm  *fsm.FSM
}

// NewLoanFSM creates a state machine positioned at the loan's current status.
func NewLoanFSM(loan *models.Loan) *LoanFSM {
	open := []string{string(models.LoanStatusPending), string(models.LoanStatusPartial)}

	lfsm := &LoanFSM{loan: loan}
	lfsm.fsm = fsm.NewFSM(
		string(loan.Status),
		fsm.Events{
			// pending/partial → partial
			{Name: EventRepayPartial, Src: open, Dst: string(models.LoanStatusPartial)},

			// pending/partial → complete
			{Name: EventRepayFull, Src: open, Dst: string(models.LoanStatusComplete)},

			// pending/partial → forgiven (terminal)
			{Name: EventForgive, Src: open, Dst: string(models.LoanStatusForgiven)},
		},
		fsm.Callbacks{},
	)
	return lfsm
}

// ApplyRepayment moves the loan to partial or complete for a new repaid total.
// It sets AmountRepaid only when the transition is allowed.
func (l *LoanFSM) ApplyRepayment(ctx context.Context, newRepaid decimal.Decimal) error {
	if newRepaid.GreaterThan(l.loan.Principal) {
		return fmt.Errorf("repaid total %s exceeds principal %s", newRepaid, l.loan.Principal)
	}

	event := EventRepayPartial
	if newRepaid.Equal(l.loan.Principal) {
		event = EventRepayFull
	}

	if err := l.event(ctx, event); err != nil {
		return fmt.Errorf("failed to record repayment: %w", err)
	}

	l.loan.AmountRepaid = newRepaid
	l.loan.Status = models.LoanStatus(l.fsm.Current())
	return nil
}

// Forgive closes the loan as forgiven, freezing AmountRepaid.
func (l *LoanFSM) Forgive(ctx context.Context) error {
	if err := l.event(ctx, EventForgive); err != nil {
		return fmt.Errorf("failed to forgive loan: %w", err)
	}

	l.loan.Status = models.LoanStatus(l.fsm.Current())
	return nil
}

// event fires e, treating a partial→partial self transition as success.
func (l *LoanFSM) event(ctx context.Context, e string) error {
	err := l.fsm.Event(ctx, e)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	return err
}

// Can reports whether event is allowed from the loan's status.
func (l *LoanFSM) Can(event string) bool {
	return l.fsm.Can(event)
}
