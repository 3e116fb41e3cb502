package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/ledger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/reminders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createAccountRequest struct {
	Name    string          `json:"name" validate:"required,max=100"`
	Balance decimal.Decimal `json:"balance"`
}

func (s *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := s.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Balance.IsNegative() {
		writeError(w, r, apperr.Validation("Opening balance cannot be negative"))
		return
	}

	account := &models.Account{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(req.Name),
		Balance:   req.Balance,
		CreatedAt: s.clock.Now(),
	}
	if err := s.storage.CreateAccount(r.Context(), account); err != nil {
		writeError(w, r, apperr.Dependency("failed to create account", err))
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.storage.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, apperr.Dependency("failed to list accounts", err))
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) getAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account, err := s.storage.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, apperr.Dependency("failed to load account", err))
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type lendingRequest struct {
	SourceAccountID     string              `json:"source_account_id" validate:"required,uuid"`
	SettlementAccountID string              `json:"settlement_account_id" validate:"omitempty,uuid"`
	Borrower            string              `json:"borrower" validate:"required,max=200"`
	Amount              decimal.Decimal     `json:"amount"`
	Fee                 decimal.Decimal     `json:"fee"`
	Date                string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	DueDate             string              `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	InterestRate        decimal.NullDecimal `json:"interest_rate"`
	Notes               string              `json:"notes" validate:"max=2000"`
}

type borrowingRequest struct {
	DestinationAccountID string              `json:"destination_account_id" validate:"required,uuid"`
	RepaymentAccountID   string              `json:"repayment_account_id" validate:"omitempty,uuid"`
	Lender               string              `json:"lender" validate:"required,max=200"`
	Amount               decimal.Decimal     `json:"amount"`
	Date                 string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	DueDate              string              `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	InterestRate         decimal.NullDecimal `json:"interest_rate"`
	Notes                string              `json:"notes" validate:"max=2000"`
}

type feeResponse struct {
	Recorded    bool                `json:"recorded"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type loanCreatedResponse struct {
	Loan        *models.Loan        `json:"loan"`
	Transaction *models.Transaction `json:"transaction"`
	Fee         *feeResponse        `json:"fee,omitempty"`
}

func newLoanCreatedResponse(res *ledger.LendingResult) loanCreatedResponse {
	out := loanCreatedResponse{Loan: res.Loan, Transaction: res.Transaction}
	if res.Fee != nil {
		out.Fee = &feeResponse{Recorded: res.Fee.Recorded(), Transaction: res.Fee.Transaction}
		if res.Fee.Err != nil {
			out.Fee.Error = apperr.Message(res.Fee.Err)
		}
	}
	return out
}

func (s *Server) createLendingHandler(w http.ResponseWriter, r *http.Request) {
	var req lendingRequest
	if err := s.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.ledger.CreateLending(r.Context(), ledger.LendingRequest{
		SourceAccountID:     uuid.MustParse(req.SourceAccountID),
		SettlementAccountID: parseOptionalID(req.SettlementAccountID),
		Counterparty:        req.Borrower,
		Amount:              req.Amount,
		Fee:                 req.Fee,
		Date:                parseDate(req.Date),
		DueDate:             parseOptionalDate(req.DueDate),
		InterestRate:        req.InterestRate,
		Notes:               req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLoanCreatedResponse(res))
}

func (s *Server) createBorrowingHandler(w http.ResponseWriter, r *http.Request) {
	var req borrowingRequest
	if err := s.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.ledger.CreateBorrowedLoan(r.Context(), ledger.BorrowingRequest{
		DestinationAccountID: uuid.MustParse(req.DestinationAccountID),
		RepaymentAccountID:   parseOptionalID(req.RepaymentAccountID),
		Lender:               req.Lender,
		Amount:               req.Amount,
		Date:                 parseDate(req.Date),
		DueDate:              parseOptionalDate(req.DueDate),
		InterestRate:         req.InterestRate,
		Notes:                req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLoanCreatedResponse(res))
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans(r.Context(), models.Direction(r.URL.Query().Get("direction")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) loanTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.Transactions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteLoan(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type repaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	AccountID string          `json:"account_id" validate:"omitempty,uuid"`
	Date      string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes     string          `json:"notes" validate:"max=2000"`
}

// recordRepaymentHandler serves both directions; the loan decides which ledger
// operation applies.
func (s *Server) recordRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req repaymentRequest
	if err := s.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	repayment := ledger.RepaymentRequest{
		Amount:    req.Amount,
		AccountID: parseOptionalID(req.AccountID),
		Date:      parseDate(req.Date),
		Notes:     req.Notes,
	}
	var res *ledger.RepaymentResult
	if loan.Direction == models.DirectionBorrowed {
		res, err = s.ledger.RecordBorrowedLoanRepayment(r.Context(), id, repayment)
	} else {
		res, err = s.ledger.RecordRepayment(r.Context(), id, repayment)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type forgiveRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (s *Server) forgiveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req forgiveRequest
	if err := s.decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.ledger.ForgiveLending(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryDirection defaults to lent.
func queryDirection(r *http.Request) models.Direction {
	if d := r.URL.Query().Get("direction"); d != "" {
		return models.Direction(d)
	}
	return models.DirectionLent
}

func (s *Server) counterpartiesHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := s.counterparties.Counterparties(r.Context(), queryDirection(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) lendingSummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.counterparties.Totals(r.Context(), queryDirection(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type renewalRequest struct {
	Title          string          `json:"title" validate:"required,max=200"`
	RenewalDate    string          `json:"renewal_date" validate:"required,datetime=2006-01-02"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	ReminderDays   []int           `json:"reminder_days" validate:"omitempty,dive,gt=0"`
	Notes          string          `json:"notes" validate:"max=2000"`
}

func (s *Server) createRenewalHandler(w http.ResponseWriter, r *http.Request) {
	var req renewalRequest
	if err := s.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	reminder, err := s.renewals.Create(r.Context(), reminders.RenewalInput{
		Title:          req.Title,
		RenewalDate:    parseDate(req.RenewalDate),
		ExpectedAmount: req.ExpectedAmount,
		ReminderDays:   req.ReminderDays,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reminder)
}

func (s *Server) listRenewalsHandler(w http.ResponseWriter, r *http.Request) {
	views, err := s.renewals.List(r.Context(), models.ReminderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) cancelRenewalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reminder, err := s.renewals.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}

type renewRequest struct {
	NextRenewalDate string `json:"next_renewal_date" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) renewHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req renewRequest
	if err := s.decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.renewals.MarkRenewed(r.Context(), id, parseOptionalDate(req.NextRenewalDate))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type obligationRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
	NextDueDate string          `json:"next_due_date" validate:"required,datetime=2006-01-02"`
	Frequency   string          `json:"frequency" validate:"required,oneof=daily weekly biweekly monthly quarterly yearly"`
	Kind        string          `json:"kind" validate:"required,oneof=bill subscription"`
}

func (s *Server) createObligationHandler(w http.ResponseWriter, r *http.Request) {
	var req obligationRequest
	if err := s.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := s.feed.CreateObligation(r.Context(), reminders.ObligationInput{
		Title:       req.Title,
		Amount:      req.Amount,
		NextDueDate: parseDate(req.NextDueDate),
		Frequency:   models.Frequency(req.Frequency),
		Kind:        models.ObligationKind(req.Kind),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) payObligationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := s.feed.MarkObligationPaid(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := reminders.FeedOptions{Kind: reminders.ItemKind(q.Get("kind"))}
	if v := q.Get("within_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, apperr.Validation("within_days must be a whole number"))
			return
		}
		opts.WithinDays = days
	}
	feed, err := s.feed.Feed(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}
