package ledger

import (
	"context"
	"errors"
	"fmt"
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

const (
	badDebtAccountName   = "Bad Debt Write-offs"
	maxLoanWriteAttempts = 3
)

// Storage is the part of the backend the ledger writes to.
type Storage interface {
	store.AccountStore
	store.TransactionLog
	store.LoanStore
}

// Ledger handles the business logic for loans and their transactions.
type Ledger struct {
	storage Storage
	clock   clock.Clock
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s Storage, c clock.Clock) *Ledger {
	if c == nil {
		c = clock.System{}
	}
	return &Ledger{storage: s, clock: c}
}

// LendingRequest describes money the user lends out.
type LendingRequest struct {
	SourceAccountID     uuid.UUID
	SettlementAccountID *uuid.UUID // where repayments land; defaults to the source account
	Counterparty        string
	Amount              decimal.Decimal
	Fee                 decimal.Decimal // optional transaction fee charged to the source account
	Date                time.Time
	DueDate             *time.Time
	InterestRate        decimal.NullDecimal
	Notes               string
}

// BorrowingRequest describes money the user borrows.
type BorrowingRequest struct {
	DestinationAccountID uuid.UUID
	RepaymentAccountID   *uuid.UUID // where repayments are paid from; defaults to the destination account
	Lender               string
	Amount               decimal.Decimal
	Date                 time.Time
	DueDate              *time.Time
	InterestRate         decimal.NullDecimal
	Notes                string
}

// RepaymentRequest records money moving back toward settling a loan.
type RepaymentRequest struct {
	Amount    decimal.Decimal
	AccountID *uuid.UUID // overrides the loan's settlement account
	Date      time.Time
	Notes     string
}

// SecondaryOutcome reports a best-effort write. Exactly one of Transaction and Err is set.
type SecondaryOutcome struct {
	Transaction *models.Transaction
	Err         error
}

func (o *SecondaryOutcome) Recorded() bool {
	return o != nil && o.Err == nil && o.Transaction != nil
}

type LendingResult struct {
	Loan        *models.Loan
	Transaction *models.Transaction
	Fee         *SecondaryOutcome // nil when no fee was requested
}

type RepaymentResult struct {
	Loan        *models.Loan        `json:"loan"`
	Transaction *models.Transaction `json:"transaction"`
	Status      models.LoanStatus   `json:"status"`
	Remaining   decimal.Decimal     `json:"remaining"`
}

type ForgiveResult struct {
	Loan        *models.Loan        `json:"loan"`
	Transaction *models.Transaction `json:"transaction"`
	WrittenOff  decimal.Decimal     `json:"written_off"`
}

// roles maps a direction to its transaction kinds. Opening a borrowed loan brings money
// in; opening a lent loan sends it out. Repayments flow the other way.
type roles struct {
	openKind     models.TransactionKind
	repayKind    models.TransactionKind
	inflowOnOpen bool
}

var directionRoles = map[models.Direction]roles{
	models.DirectionLent:     {openKind: models.TransactionKindLending, repayKind: models.TransactionKindRepayment, inflowOnOpen: false},
	models.DirectionBorrowed: {openKind: models.TransactionKindLoanReceived, repayKind: models.TransactionKindLoanRepayment, inflowOnOpen: true},
}

// legs returns the from/to sides for money moving in or out of account.
func legs(inflow bool, account uuid.UUID) (from, to *uuid.UUID) {
	if inflow {
		return nil, &account
	}
	return &account, nil
}

type openRequest struct {
	direction    models.Direction
	sourceID     uuid.UUID
	settlementID *uuid.UUID
	counterparty string
	amount       decimal.Decimal
	fee          decimal.Decimal
	date         time.Time
	dueDate      *time.Time
	interestRate decimal.NullDecimal
	notes        string
}

// CreateLending records money lent from one of the user's accounts.
func (l *Ledger) CreateLending(ctx context.Context, req LendingRequest) (*LendingResult, error) {
	return l.open(ctx, openRequest{
		direction:    models.DirectionLent,
		sourceID:     req.SourceAccountID,
		settlementID: req.SettlementAccountID,
		counterparty: req.Counterparty,
		amount:       req.Amount,
		fee:          req.Fee,
		date:         req.Date,
		dueDate:      req.DueDate,
		interestRate: req.InterestRate,
		notes:        req.Notes,
	})
}

// CreateBorrowedLoan records money borrowed into one of the user's accounts.
func (l *Ledger) CreateBorrowedLoan(ctx context.Context, req BorrowingRequest) (*LendingResult, error) {
	return l.open(ctx, openRequest{
		direction:    models.DirectionBorrowed,
		sourceID:     req.DestinationAccountID,
		settlementID: req.RepaymentAccountID,
		counterparty: req.Lender,
		amount:       req.Amount,
		fee:          decimal.Zero,
		date:         req.Date,
		dueDate:      req.DueDate,
		interestRate: req.InterestRate,
		notes:        req.Notes,
	})
}

func validateOpen(req openRequest) error {
	if req.sourceID == uuid.Nil {
		return apperr.Validation("An account is required")
	}
	if strings.TrimSpace(req.counterparty) == "" {
		if req.direction == models.DirectionBorrowed {
			return apperr.Validation("Lender name is required")
		}
		return apperr.Validation("Borrower name is required")
	}
	if !req.amount.IsPositive() {
		return apperr.Validation("Amount must be greater than zero")
	}
	if req.fee.IsNegative() {
		return apperr.Validation("Transaction fee cannot be negative")
	}
	if req.interestRate.Valid && req.interestRate.Decimal.IsNegative() {
		return apperr.Validation("Interest rate cannot be negative")
	}
	if req.dueDate != nil && clock.DaysBetween(req.date, *req.dueDate) < 0 {
		return apperr.Validation("Due date cannot be before the loan date")
	}
	return nil
}

func (l *Ledger) open(ctx context.Context, req openRequest) (*LendingResult, error) {
	now := l.clock.Now()
	if req.date.IsZero() {
		req.date = now
	}
	if err := validateOpen(req); err != nil {
		return nil, err
	}
	r := directionRoles[req.direction]

	source, err := l.storage.GetAccount(ctx, req.sourceID)
	if err != nil {
		return nil, apperr.Dependency("failed to load account", err)
	}
	if req.settlementID != nil {
		if _, err := l.storage.GetAccount(ctx, *req.settlementID); err != nil {
			return nil, apperr.Dependency("failed to load settlement account", err)
		}
	}

	// Money leaving the account must be there before anything is written.
	if !r.inflowOnOpen {
		if err := l.checkBalance(ctx, source, req.amount.Add(req.fee)); err != nil {
			return nil, err
		}
	}

	loan := &models.Loan{
		ID:                  uuid.New(),
		Direction:           req.direction,
		Counterparty:        strings.TrimSpace(req.counterparty),
		Principal:           req.amount,
		AmountRepaid:        decimal.Zero,
		OriginationDate:     req.date,
		DueDate:             req.dueDate,
		InterestRate:        req.interestRate,
		Status:              models.LoanStatusPending,
		SourceAccountID:     source.ID,
		SettlementAccountID: req.settlementID,
		Notes:               strings.TrimSpace(req.notes),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, apperr.Dependency("failed to store loan", err)
	}

	from, to := legs(r.inflowOnOpen, source.ID)
	primary := l.newTransaction(loan, r.openKind, from, to, req.amount, req.date, openDescription(loan, source))
	if err := l.post(ctx, primary); err != nil {
		if delErr := l.storage.DeleteLoan(ctx, loan.ID); delErr != nil {
			logger.Error("failed to remove loan after its transaction failed", "loan_id", loan.ID, "error", delErr)
		}
		return nil, err
	}

	result := &LendingResult{Loan: loan, Transaction: primary}

	if req.fee.IsPositive() {
		fee := l.newTransaction(loan, models.TransactionKindTransactionFee, &source.ID, nil, req.fee, req.date,
			fmt.Sprintf("Transaction fee for lending to %s", loan.Counterparty))
		if err := l.post(ctx, fee); err != nil {
			logger.Error("fee transaction not recorded", "loan_id", loan.ID, "fee", req.fee.String(), "error", err)
			result.Fee = &SecondaryOutcome{Err: err}
		} else {
			result.Fee = &SecondaryOutcome{Transaction: fee}
		}
	}

	logger.Info("loan created", "loan_id", loan.ID, "direction", loan.Direction, "counterparty", loan.Counterparty,
		"amount", loan.Principal.String())
	return result, nil
}

func openDescription(loan *models.Loan, account *models.Account) string {
	if loan.Direction == models.DirectionBorrowed {
		return fmt.Sprintf("Loan received from %s into %s", loan.Counterparty, account.Name)
	}
	return fmt.Sprintf("Lent to %s from %s", loan.Counterparty, account.Name)
}

// checkBalance fails with InsufficientBalance when account cannot cover required.
func (l *Ledger) checkBalance(ctx context.Context, account *models.Account, required decimal.Decimal) error {
	available, err := l.storage.GetBalance(ctx, account.ID)
	if err != nil {
		return apperr.Dependency("failed to read balance", err)
	}
	if available.LessThan(required) {
		return apperr.New(apperr.KindInsufficientBalance,
			"Insufficient balance in %s. Available: %s, Required: %s", account.Name, available.String(), required.String())
	}
	return nil
}

// RecordRepayment records money received back on a lent loan.
func (l *Ledger) RecordRepayment(ctx context.Context, loanID uuid.UUID, req RepaymentRequest) (*RepaymentResult, error) {
	return l.repay(ctx, models.DirectionLent, loanID, req)
}

// RecordBorrowedLoanRepayment records money paid back to a lender.
func (l *Ledger) RecordBorrowedLoanRepayment(ctx context.Context, loanID uuid.UUID, req RepaymentRequest) (*RepaymentResult, error) {
	return l.repay(ctx, models.DirectionBorrowed, loanID, req)
}

func (l *Ledger) repay(ctx context.Context, direction models.Direction, loanID uuid.UUID, req RepaymentRequest) (*RepaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("Repayment amount must be greater than zero")
	}
	return retryOnConflict(loanID, func() (*RepaymentResult, error) {
		return l.repayOnce(ctx, direction, loanID, req)
	})
}

func (l *Ledger) repayOnce(ctx context.Context, direction models.Direction, loanID uuid.UUID, req RepaymentRequest) (*RepaymentResult, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, apperr.Dependency("failed to load loan", err)
	}
	if loan.Direction != direction {
		return nil, apperr.Validation("Loan %s is a %s loan, not %s", loan.ID, loan.Direction, direction)
	}
	machine := statemachine.NewLoanFSM(loan)
	if !machine.Can(statemachine.EventRepayPartial) {
		if loan.Status == models.LoanStatusForgiven {
			return nil, apperr.New(apperr.KindAlreadySettled, "The loan with %s was forgiven and cannot take repayments", loan.Counterparty)
		}
		return nil, apperr.New(apperr.KindAlreadySettled, "The loan with %s is already fully repaid", loan.Counterparty)
	}

	outstanding := loan.Outstanding()
	newRepaid := loan.AmountRepaid.Add(req.Amount)
	if newRepaid.GreaterThan(loan.Principal) {
		return nil, apperr.New(apperr.KindOverRepayment,
			"Repayment of %s exceeds the outstanding balance of %s", req.Amount.String(), outstanding.String())
	}

	accountID := loan.RepaymentAccountID()
	if req.AccountID != nil {
		accountID = *req.AccountID
	}
	account, err := l.storage.GetAccount(ctx, accountID)
	if err != nil {
		return nil, apperr.Dependency("failed to load repayment account", err)
	}

	r := directionRoles[direction]
	inflow := !r.inflowOnOpen
	// A repayment received is not checked against the account it lands in.
	if !inflow {
		if err := l.checkBalance(ctx, account, req.Amount); err != nil {
			return nil, err
		}
	}

	date := req.Date
	if date.IsZero() {
		date = l.clock.Now()
	}

	before := *loan
	if err := machine.ApplyRepayment(ctx, newRepaid); err != nil {
		return nil, apperr.New(apperr.KindAlreadySettled, "%v", err)
	}
	line := fmt.Sprintf("Repayment of %s via %s (remaining %s)", req.Amount.String(), account.Name, loan.Outstanding().String())
	if note := strings.TrimSpace(req.Notes); note != "" {
		line += ": " + note
	}
	l.appendNote(loan, line)
	loan.UpdatedAt = l.clock.Now()

	if err := l.storage.UpdateLoan(ctx, loan, &before); err != nil {
		return nil, apperr.Dependency("failed to update loan", err)
	}

	from, to := legs(inflow, account.ID)
	var description string
	if direction == models.DirectionBorrowed {
		description = fmt.Sprintf("Loan repayment to %s from %s", loan.Counterparty, account.Name)
	} else {
		description = fmt.Sprintf("Repayment from %s into %s", loan.Counterparty, account.Name)
	}
	tx := l.newTransaction(loan, r.repayKind, from, to, req.Amount, date, description)
	if err := l.post(ctx, tx); err != nil {
		l.restore(ctx, &before, loan)
		return nil, err
	}

	logger.Info("repayment recorded", "loan_id", loan.ID, "amount", req.Amount.String(), "status", loan.Status)
	return &RepaymentResult{
		Loan:        loan,
		Transaction: tx,
		Status:      loan.Status,
		Remaining:   loan.Outstanding(),
	}, nil
}

// ForgiveLending writes off what is still owed on a lent loan. The write-off is a real
// transfer from the source account to the bad-debt system account.
func (l *Ledger) ForgiveLending(ctx context.Context, loanID uuid.UUID, reason string) (*ForgiveResult, error) {
	return retryOnConflict(loanID, func() (*ForgiveResult, error) {
		return l.forgiveOnce(ctx, loanID, reason)
	})
}

func (l *Ledger) forgiveOnce(ctx context.Context, loanID uuid.UUID, reason string) (*ForgiveResult, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, apperr.Dependency("failed to load loan", err)
	}
	if loan.Direction != models.DirectionLent {
		return nil, apperr.Validation("Only money you lent can be forgiven")
	}
	machine := statemachine.NewLoanFSM(loan)
	if !machine.Can(statemachine.EventForgive) {
		return nil, apperr.New(apperr.KindNothingToForgive, "The loan with %s is already %s", loan.Counterparty, loan.Status)
	}
	writeOff := loan.Outstanding()
	if !writeOff.IsPositive() {
		return nil, apperr.New(apperr.KindNothingToForgive, "Nothing is outstanding on the loan with %s", loan.Counterparty)
	}

	badDebt, err := l.storage.SystemAccount(ctx, models.SystemKindBadDebt, badDebtAccountName, l.clock.Now())
	if err != nil {
		return nil, apperr.Dependency("failed to resolve bad debt account", err)
	}

	before := *loan
	if err := machine.Forgive(ctx); err != nil {
		return nil, apperr.New(apperr.KindNothingToForgive, "%v", err)
	}
	line := fmt.Sprintf("Forgiven: wrote off %s as bad debt", writeOff.String())
	if reason = strings.TrimSpace(reason); reason != "" {
		line += ". Reason: " + reason
	}
	l.appendNote(loan, line)
	loan.UpdatedAt = l.clock.Now()

	if err := l.storage.UpdateLoan(ctx, loan, &before); err != nil {
		return nil, apperr.Dependency("failed to update loan", err)
	}

	tx := l.newTransaction(loan, models.TransactionKindBadDebt, &loan.SourceAccountID, &badDebt.ID, writeOff, l.clock.Now(),
		fmt.Sprintf("Bad debt write-off for %s", loan.Counterparty))
	if err := l.post(ctx, tx); err != nil {
		l.restore(ctx, &before, loan)
		return nil, err
	}

	logger.Info("loan forgiven", "loan_id", loan.ID, "written_off", writeOff.String())
	return &ForgiveResult{Loan: loan, Transaction: tx, WrittenOff: writeOff}, nil
}

// DeleteLoan removes a loan that never received a repayment, together with its
// transactions, and reverses the balance effect of those transactions.
func (l *Ledger) DeleteLoan(ctx context.Context, loanID uuid.UUID) error {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return apperr.Dependency("failed to load loan", err)
	}
	if loan.AmountRepaid.IsPositive() {
		return apperr.New(apperr.KindHasRepaymentHistory,
			"The loan with %s has %s in repayments recorded and cannot be deleted", loan.Counterparty, loan.AmountRepaid.String())
	}

	txs, err := l.storage.ListByReference(ctx, loan.ID, models.ReferenceTypeLoan)
	if err != nil {
		return apperr.Dependency("failed to list loan transactions", err)
	}

	if err := l.storage.DeleteLoan(ctx, loan.ID); err != nil {
		return apperr.Dependency("failed to delete loan", err)
	}

	var errs []error
	for _, tx := range txs {
		if tx.FromAccountID != nil {
			if err := l.storage.ApplyDelta(ctx, *tx.FromAccountID, tx.Amount); err != nil {
				errs = append(errs, err)
			}
		}
		if tx.ToAccountID != nil {
			if err := l.storage.ApplyDelta(ctx, *tx.ToAccountID, tx.Amount.Neg()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Error("loan deleted but balances not fully restored", "loan_id", loan.ID, "error", err)
		return &apperr.Error{Kind: apperr.KindDependencyFailure, Message: "Loan deleted but account balances could not be fully restored", Err: err}
	}

	logger.Info("loan deleted", "loan_id", loan.ID, "transactions", len(txs))
	return nil
}

// DeleteLending is DeleteLoan under the name the lending screens use.
func (l *Ledger) DeleteLending(ctx context.Context, loanID uuid.UUID) error {
	return l.DeleteLoan(ctx, loanID)
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("failed to load loan", err)
	}
	return loan, nil
}

// ListLoans retrieves loans of one direction, or all loans for an empty direction.
func (l *Ledger) ListLoans(ctx context.Context, direction models.Direction) ([]*models.Loan, error) {
	if direction != "" && !direction.Valid() {
		return nil, apperr.Validation("Unknown loan direction %q", direction)
	}
	loans, err := l.storage.ListLoans(ctx, direction)
	if err != nil {
		return nil, apperr.Dependency("failed to list loans", err)
	}
	return loans, nil
}

// Transactions returns the ordered audit trail of a loan.
func (l *Ledger) Transactions(ctx context.Context, loanID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := l.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	txs, err := l.storage.ListByReference(ctx, loanID, models.ReferenceTypeLoan)
	if err != nil {
		return nil, apperr.Dependency("failed to list loan transactions", err)
	}
	return txs, nil
}

func (l *Ledger) newTransaction(loan *models.Loan, kind models.TransactionKind, from, to *uuid.UUID, amount decimal.Decimal, date time.Time, description string) *models.Transaction {
	return &models.Transaction{
		ID:            uuid.New(),
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		Kind:          kind,
		ReferenceID:   loan.ID,
		ReferenceType: models.ReferenceTypeLoan,
		Description:   description,
		Date:          date,
		CreatedAt:     l.clock.Now(),
	}
}

type delta struct {
	account uuid.UUID
	amount  decimal.Decimal
}

// post applies the transaction's balance deltas and appends it to the log. A failure
// part way through undoes the deltas already applied.
func (l *Ledger) post(ctx context.Context, tx *models.Transaction) error {
	var pending []delta
	if tx.FromAccountID != nil {
		pending = append(pending, delta{*tx.FromAccountID, tx.Amount.Neg()})
	}
	if tx.ToAccountID != nil {
		pending = append(pending, delta{*tx.ToAccountID, tx.Amount})
	}

	var applied []delta
	for _, d := range pending {
		if err := l.storage.ApplyDelta(ctx, d.account, d.amount); err != nil {
			l.undo(ctx, applied)
			return apperr.Dependency(fmt.Sprintf("failed to apply %s to account balance", tx.Kind), err)
		}
		applied = append(applied, d)
	}

	if err := l.storage.AppendTransaction(ctx, tx); err != nil {
		l.undo(ctx, applied)
		return apperr.Dependency(fmt.Sprintf("failed to record %s transaction", tx.Kind), err)
	}
	return nil
}

func (l *Ledger) undo(ctx context.Context, applied []delta) {
	for _, d := range applied {
		if err := l.storage.ApplyDelta(ctx, d.account, d.amount.Neg()); err != nil {
			logger.Error("failed to undo balance change", "account_id", d.account, "amount", d.amount.String(), "error", err)
		}
	}
}

// restore puts back a loan snapshot after its transaction could not be posted.
// saved is the version written just before the failure.
func (l *Ledger) restore(ctx context.Context, snapshot, saved *models.Loan) {
	if err := l.storage.UpdateLoan(ctx, snapshot, saved); err != nil {
		logger.Error("failed to restore loan after transaction failure", "loan_id", snapshot.ID, "error", err)
	}
}

// retryOnConflict reruns op while another request changes the loan between op's read
// and its write. Every run reloads and revalidates the loan, so a repayment that no
// longer fits fails as an over-repayment instead of overwriting the other one.
func retryOnConflict[T any](loanID uuid.UUID, op func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= maxLoanWriteAttempts; attempt++ {
		result, err = op()
		if !errors.Is(err, apperr.ErrConflict) {
			return result, err
		}
		logger.Warn("loan changed during update, retrying", "loan_id", loanID, "attempt", attempt)
	}
	return result, err
}

// appendNote adds a timestamped line; earlier lines are never rewritten.
func (l *Ledger) appendNote(loan *models.Loan, line string) {
	stamped := fmt.Sprintf("[%s] %s", l.clock.Now().Format("2006-01-02 15:04"), line)
	if loan.Notes == "" {
		loan.Notes = stamped
		return
	}
	loan.Notes += "\n" + stamped
}
