package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells which side of a loan the user is on.
type Direction string

const (
	DirectionLent     Direction = "lent"     // user gave money to the counterparty
	DirectionBorrowed Direction = "borrowed" // user received money from a lender
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionLent || d == DirectionBorrowed
}

type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "pending"
	LoanStatusPartial  LoanStatus = "partial"
	LoanStatusComplete LoanStatus = "complete"
	LoanStatusForgiven LoanStatus = "forgiven"
)

// Loan is a single lending or borrowing agreement with a named counterparty.
type Loan struct {
	ID                  uuid.UUID           `json:"id"`
	Direction           Direction           `json:"direction"`
	Counterparty        string              `json:"counterparty"` // person lent to, or lender borrowed from
	Principal           decimal.Decimal     `json:"principal"`
	AmountRepaid        decimal.Decimal     `json:"amount_repaid"`
	OriginationDate     time.Time           `json:"origination_date"`
	DueDate             *time.Time          `json:"due_date,omitempty"`
	InterestRate        decimal.NullDecimal `json:"interest_rate"` // informational only, never compounded
	Status              LoanStatus          `json:"status"`
	SourceAccountID     uuid.UUID           `json:"source_account_id"`               // lent: money left from; borrowed: deposited to
	SettlementAccountID *uuid.UUID          `json:"settlement_account_id,omitempty"` // lent: repayments land; borrowed: repayments paid from
	Notes               string              `json:"notes"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Outstanding is the unpaid part of the principal, never negative.
func (l *Loan) Outstanding() decimal.Decimal {
	out := l.Principal.Sub(l.AmountRepaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// IsActive reports whether the loan still expects money to move.
func (l *Loan) IsActive() bool {
	return l.Status == LoanStatusPending || l.Status == LoanStatusPartial
}

// RepaymentAccountID is where repayments land (lent) or are paid from (borrowed).
func (l *Loan) RepaymentAccountID() uuid.UUID {
	if l.SettlementAccountID != nil {
		return *l.SettlementAccountID
	}
	return l.SourceAccountID
}

type TransactionKind string

const (
	TransactionKindLending        TransactionKind = "lending"
	TransactionKindRepayment      TransactionKind = "repayment"
	TransactionKindLoanReceived   TransactionKind = "loan_received"
	TransactionKindLoanRepayment  TransactionKind = "loan_repayment"
	TransactionKindBadDebt        TransactionKind = "bad_debt"
	TransactionKindTransactionFee TransactionKind = "transaction_fee"
)

// ReferenceTypeLoan marks transactions that belong to a Loan.
const ReferenceTypeLoan = "loan"

// Transaction is an immutable directional money movement. A nil account side means
// the money crossed the boundary of the tracked accounts.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	FromAccountID *uuid.UUID      `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID      `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          TransactionKind `json:"kind"`
	ReferenceID   uuid.UUID       `json:"reference_id"`
	ReferenceType string          `json:"reference_type"`
	Description   string          `json:"description"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
}

const SystemKindBadDebt = "bad_debt"

// Account holds one balance. System accounts are created by the ledger itself.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	IsSystem   bool            `json:"is_system"`
	SystemKind string          `json:"system_kind,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
