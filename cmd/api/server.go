package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/counterparty"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/ledger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/logger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/notify"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/reminders"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const dateLayout = time.DateOnly

// Server holds the services behind the HTTP API.
type Server struct {
	ledger         *ledger.Ledger
	counterparties *counterparty.Aggregator
	renewals       *reminders.Lifecycle
	feed           *reminders.Aggregator
	notifier       reminders.Notifier
	storage        store.Storage // Keep a reference to the storage to close it
	clock          clock.Clock
	validate       *validator.Validate
}

func NewServer(s store.Storage, c clock.Clock, feedCfg reminders.FeedConfig) *Server {
	if c == nil {
		c = clock.System{}
	}
	return &Server{
		ledger:         ledger.NewLedger(s, c),
		counterparties: counterparty.NewAggregator(s, c),
		renewals:       reminders.NewLifecycle(s, c),
		feed:           reminders.NewAggregator(s, s, c, feedCfg),
		notifier:       notify.NewLogNotifier(nil),
		storage:        s,
		clock:          c,
		validate:       validator.New(),
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/accounts", s.createAccountHandler).Methods("POST")
	router.HandleFunc("/accounts", s.listAccountsHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}", s.getAccountHandler).Methods("GET")

	router.HandleFunc("/lendings", s.createLendingHandler).Methods("POST")
	router.HandleFunc("/borrowings", s.createBorrowingHandler).Methods("POST")
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/transactions", s.loanTransactionsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/repayments", s.recordRepaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/forgive", s.forgiveHandler).Methods("POST")

	router.HandleFunc("/counterparties", s.counterpartiesHandler).Methods("GET")
	router.HandleFunc("/lending-summary", s.lendingSummaryHandler).Methods("GET")

	router.HandleFunc("/renewal-reminders", s.createRenewalHandler).Methods("POST")
	router.HandleFunc("/renewal-reminders", s.listRenewalsHandler).Methods("GET")
	router.HandleFunc("/renewal-reminders/sweep", s.sweepHandler).Methods("POST")
	router.HandleFunc("/renewal-reminders/{id}/cancel", s.cancelRenewalHandler).Methods("POST")
	router.HandleFunc("/renewal-reminders/{id}/renew", s.renewHandler).Methods("POST")

	router.HandleFunc("/obligations", s.createObligationHandler).Methods("POST")
	router.HandleFunc("/obligations/{id}/pay", s.payObligationHandler).Methods("POST")
	router.HandleFunc("/reminders", s.feedHandler).Methods("GET")

	return router
}

// SweepResult reports one expiry and notification pass.
type SweepResult struct {
	Expired  int `json:"expired"`
	Notified int `json:"notified"`
}

// Sweep expires lapsed renewal reminders, then notifies the ones due today.
func (s *Server) Sweep(ctx context.Context) (SweepResult, error) {
	expired, err := s.renewals.ProcessExpiredReminders(ctx)
	if err != nil {
		return SweepResult{Expired: expired}, err
	}
	notified, err := s.renewals.NotifyDue(ctx, s.notifier)
	if err != nil {
		return SweepResult{Expired: expired}, err
	}
	return SweepResult{Expired: expired, Notified: notified}, nil
}

type errorResponse struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadySettled, apperr.KindNothingToForgive, apperr.KindHasRepaymentHistory, apperr.KindInvalidTransition,
		apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInsufficientBalance, apperr.KindOverRepayment, apperr.KindNotYetPayable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: apperr.Message(err)})
}

// decode reads a JSON body into dst and runs its validate tags. An empty body is
// accepted when allowEmpty is set.
func (s *Server) decode(r *http.Request, dst any, allowEmpty bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("Invalid request body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return apperr.Validation("%v", err)
		}
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, fieldMessage(e))
		}
		return apperr.Validation("%s", strings.Join(messages, "; "))
	}
	return nil
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "uuid":
		return e.Field() + " must be a UUID"
	case "datetime":
		return e.Field() + " must be a date formatted as " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	}
	return e.Field() + " is invalid"
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid ID %q", mux.Vars(r)["id"])
	}
	return id, nil
}

// parseDate reads an optional YYYY-MM-DD value; the zero time means absent.
func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	// Validated by the datetime tag before this runs.
	t, _ := time.Parse(dateLayout, value)
	return t
}

func parseOptionalDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t := parseDate(value)
	return &t
}

func parseOptionalID(value string) *uuid.UUID {
	if value == "" {
		return nil
	}
	id := uuid.MustParse(value)
	return &id
}
