package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/logger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Storage on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and creates the schema if needed.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// One connection serialises writers, which is what makes ApplyDelta atomic per account.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("database connection established and schema initialized", "path", dataSourceName)
	return s, nil
}

// initSchema creates the tables. Money is stored as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		is_system INTEGER NOT NULL DEFAULT 0,
		system_kind TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		counterparty TEXT NOT NULL,
		principal TEXT NOT NULL,
		amount_repaid TEXT NOT NULL DEFAULT '0',
		origination_date DATETIME NOT NULL,
		due_date DATETIME,
		interest_rate TEXT,
		status TEXT NOT NULL,
		source_account_id TEXT NOT NULL REFERENCES accounts(id),
		settlement_account_id TEXT REFERENCES accounts(id),
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_loans_direction ON loans(direction);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		from_account_id TEXT REFERENCES accounts(id),
		to_account_id TEXT REFERENCES accounts(id),
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference_type, reference_id);
	CREATE TABLE IF NOT EXISTS renewal_reminders (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		renewal_date DATETIME NOT NULL,
		expected_amount TEXT NOT NULL DEFAULT '0',
		reminder_days TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		previous_reminder_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		amount TEXT NOT NULL,
		next_due_date DATETIME NOT NULL,
		frequency TEXT NOT NULL,
		kind TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func idPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// CreateAccount inserts a new account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance, is_system, system_kind, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, a.Balance, a.IsSystem, a.SystemKind, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

const accountColumns = `id, name, balance, is_system, system_kind, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Balance, &a.IsSystem, &a.SystemKind, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount retrieves an account by its ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns every account, system accounts last.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY is_system ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return accounts, nil
}

// GetBalance returns the current balance of an account.
func (s *SQLiteStore) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, apperr.NotFound("account", id)
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// ApplyDelta adds a signed amount to an account balance inside one database transaction.
func (s *SQLiteStore) ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id.String()).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("account", id)
		}
		return fmt.Errorf("failed to read balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance.Add(delta), id.String()); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return tx.Commit()
}

// SystemAccount finds the system account of a kind, creating it on first use.
func (s *SQLiteStore) SystemAccount(ctx context.Context, kind, name string, createdAt time.Time) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_system = 1 AND system_kind = ? ORDER BY created_at LIMIT 1`, kind))
	if err == nil {
		return a, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up system account: %w", err)
	}

	a = &models.Account{
		ID:         uuid.New(),
		Name:       name,
		Balance:    decimal.Zero,
		IsSystem:   true,
		SystemKind: kind,
		CreatedAt:  createdAt,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance, is_system, system_kind, created_at) VALUES (?, ?, ?, 1, ?, ?)`,
		a.ID.String(), a.Name, a.Balance, a.SystemKind, a.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create system account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit system account: %w", err)
	}
	return a, nil
}

// AppendTransaction inserts a new transaction into the log.
func (s *SQLiteStore) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, from_account_id, to_account_id, amount, kind, reference_id, reference_type, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), nullableID(t.FromAccountID), nullableID(t.ToAccountID), t.Amount, t.Kind,
		t.ReferenceID.String(), t.ReferenceType, t.Description, t.Date, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListByReference returns the transactions of one entity in insertion order.
func (s *SQLiteStore) ListByReference(ctx context.Context, referenceID uuid.UUID, referenceType string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_account_id, to_account_id, amount, kind, reference_id, reference_type, description, date, created_at
		FROM transactions WHERE reference_id = ? AND reference_type = ? ORDER BY rowid ASC`,
		referenceID.String(), referenceType)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for %s %s: %w", referenceType, referenceID, err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var from, to uuid.NullUUID
		if err := rows.Scan(&t.ID, &from, &to, &t.Amount, &t.Kind, &t.ReferenceID, &t.ReferenceType, &t.Description, &t.Date, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.FromAccountID = idPtr(from)
		t.ToAccountID = idPtr(to)
		transactions = append(transactions, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for transactions: %w", err)
	}
	return transactions, nil
}

const loanColumns = `id, direction, counterparty, principal, amount_repaid, origination_date, due_date, interest_rate,
	status, source_account_id, settlement_account_id, notes, created_at, updated_at`

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var dueDate sql.NullTime
	var settlement uuid.NullUUID
	err := row.Scan(&loan.ID, &loan.Direction, &loan.Counterparty, &loan.Principal, &loan.AmountRepaid,
		&loan.OriginationDate, &dueDate, &loan.InterestRate, &loan.Status, &loan.SourceAccountID, &settlement,
		&loan.Notes, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.DueDate = timePtr(dueDate)
	loan.SettlementAccountID = idPtr(settlement)
	return &loan, nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.Direction, loan.Counterparty, loan.Principal, loan.AmountRepaid, loan.OriginationDate,
		nullableTime(loan.DueDate), loan.InterestRate, loan.Status, loan.SourceAccountID.String(),
		nullableID(loan.SettlementAccountID), loan.Notes, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("loan", id)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates the mutable columns of an existing loan. The stored amount
// repaid and status are checked against prev in the same transaction as the write.
func (s *SQLiteStore) UpdateLoan(ctx context.Context, loan, prev *models.Loan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var repaid decimal.Decimal
	var status models.LoanStatus
	err = tx.QueryRowContext(ctx, `SELECT amount_repaid, status FROM loans WHERE id = ?`, loan.ID.String()).Scan(&repaid, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("loan", loan.ID)
		}
		return fmt.Errorf("failed to read loan: %w", err)
	}
	if !repaid.Equal(prev.AmountRepaid) || status != prev.Status {
		return loanChanged(loan.ID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE loans SET counterparty = ?, amount_repaid = ?, due_date = ?, interest_rate = ?, status = ?,
		settlement_account_id = ?, notes = ?, updated_at = ? WHERE id = ?`,
		loan.Counterparty, loan.AmountRepaid, nullableTime(loan.DueDate), loan.InterestRate, loan.Status,
		nullableID(loan.SettlementAccountID), loan.Notes, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return tx.Commit()
}

// DeleteLoan removes a loan and its transactions from the database within a transaction.
func (s *SQLiteStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM transactions WHERE reference_type = ? AND reference_id = ?`, models.ReferenceTypeLoan, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated transactions: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("loan", id)
	}

	return tx.Commit()
}

// ListLoans returns loans of one direction, or all loans when direction is empty.
func (s *SQLiteStore) ListLoans(ctx context.Context, direction models.Direction) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE (? = '' OR direction = ?) ORDER BY origination_date ASC, rowid ASC`,
		direction, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	loans := []*models.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func formatDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid reminder day %q: %w", p, err)
		}
		days = append(days, d)
	}
	return days, nil
}

const reminderColumns = `id, title, renewal_date, expected_amount, reminder_days, notes, status, previous_reminder_id, created_at, updated_at`

func scanReminder(row rowScanner) (*models.RenewalReminder, error) {
	var r models.RenewalReminder
	var days string
	var previous uuid.NullUUID
	if err := row.Scan(&r.ID, &r.Title, &r.RenewalDate, &r.ExpectedAmount, &days, &r.Notes, &r.Status,
		&previous, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := parseDays(days)
	if err != nil {
		return nil, err
	}
	r.ReminderDays = parsed
	r.PreviousReminderID = idPtr(previous)
	return &r, nil
}

// CreateReminder inserts a renewal reminder.
func (s *SQLiteStore) CreateReminder(ctx context.Context, r *models.RenewalReminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO renewal_reminders (`+reminderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Title, r.RenewalDate, r.ExpectedAmount, formatDays(r.ReminderDays), r.Notes, r.Status,
		nullableID(r.PreviousReminderID), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create renewal reminder: %w", err)
	}
	return nil
}

// GetReminder retrieves a renewal reminder by its ID.
func (s *SQLiteStore) GetReminder(ctx context.Context, id uuid.UUID) (*models.RenewalReminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM renewal_reminders WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("renewal reminder", id)
		}
		return nil, fmt.Errorf("failed to get renewal reminder: %w", err)
	}
	return r, nil
}

// TransitionReminder moves a reminder to a new status only while it is still in from.
func (s *SQLiteStore) TransitionReminder(ctx context.Context, id uuid.UUID, from, to models.ReminderStatus, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE renewal_reminders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at, id.String(), from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update renewal reminder: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM renewal_reminders WHERE id = ?`, id.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("renewal reminder", id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up renewal reminder: %w", err)
	}
	return false, nil
}

// ListReminders returns reminders in a status (all when empty), soonest renewal first.
func (s *SQLiteStore) ListReminders(ctx context.Context, status models.ReminderStatus) ([]*models.RenewalReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM renewal_reminders WHERE (? = '' OR status = ?) ORDER BY renewal_date ASC, rowid ASC`,
		status, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list renewal reminders: %w", err)
	}
	defer rows.Close()

	reminders := []*models.RenewalReminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan renewal reminder row: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return reminders, nil
}

const obligationColumns = `id, title, amount, next_due_date, frequency, kind, is_active, last_paid_at, created_at, updated_at`

func scanObligation(row rowScanner) (*models.Obligation, error) {
	var o models.Obligation
	var lastPaid sql.NullTime
	if err := row.Scan(&o.ID, &o.Title, &o.Amount, &o.NextDueDate, &o.Frequency, &o.Kind, &o.IsActive,
		&lastPaid, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.LastPaidAt = timePtr(lastPaid)
	return &o, nil
}

// CreateObligation inserts a recurring bill or subscription.
func (s *SQLiteStore) CreateObligation(ctx context.Context, o *models.Obligation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO obligations (`+obligationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(), o.Title, o.Amount, o.NextDueDate, o.Frequency, o.Kind, o.IsActive,
		nullableTime(o.LastPaidAt), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create obligation: %w", err)
	}
	return nil
}

// GetObligation retrieves an obligation by its ID.
func (s *SQLiteStore) GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	o, err := scanObligation(s.db.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("obligation", id)
		}
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}
	return o, nil
}

// UpdateObligation saves schedule and status changes.
func (s *SQLiteStore) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE obligations SET title = ?, amount = ?, next_due_date = ?, frequency = ?, kind = ?, is_active = ?,
		last_paid_at = ?, updated_at = ? WHERE id = ?`,
		o.Title, o.Amount, o.NextDueDate, o.Frequency, o.Kind, o.IsActive, nullableTime(o.LastPaidAt), o.UpdatedAt, o.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update obligation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("obligation", o.ID)
	}
	return nil
}

// ListActive returns active obligations due within the window. The window is applied
// by calendar day in Go since stored timestamps may carry different offsets.
func (s *SQLiteStore) ListActive(ctx context.Context, kind models.ObligationKind, withinDays int, today time.Time) ([]*models.Obligation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE is_active = 1 AND (? = '' OR kind = ?)`, kind, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list active obligations: %w", err)
	}
	defer rows.Close()

	obligations := []*models.Obligation{}
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation row: %w", err)
		}
		if clock.DaysBetween(today, o.NextDueDate) > withinDays {
			continue
		}
		obligations = append(obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	slices.SortStableFunc(obligations, func(a, b *models.Obligation) int {
		return a.NextDueDate.Compare(b.NextDueDate)
	})
	return obligations, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
