package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in maps guarded by one mutex. Records are copied
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]models.Account
	accountOrder []uuid.UUID
	loans        map[uuid.UUID]models.Loan
	loanOrder    []uuid.UUID
	transactions []models.Transaction
	reminders    map[uuid.UUID]models.RenewalReminder
	remOrder     []uuid.UUID
	obligations  map[uuid.UUID]models.Obligation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[uuid.UUID]models.Account),
		loans:       make(map[uuid.UUID]models.Loan),
		reminders:   make(map[uuid.UUID]models.RenewalReminder),
		obligations: make(map[uuid.UUID]models.Obligation),
	}
}

func (m *MemoryStore) CreateAccount(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	m.accounts[account.ID] = *account
	m.accountOrder = append(m.accountOrder, account.ID)
	return nil
}

func (m *MemoryStore) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account", id)
	}
	return &a, nil
}

func (m *MemoryStore) ListAccounts(_ context.Context) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts := make([]*models.Account, 0, len(m.accountOrder))
	for _, id := range m.accountOrder {
		a := m.accounts[id]
		accounts = append(accounts, &a)
	}
	return accounts, nil
}

func (m *MemoryStore) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	a, err := m.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

func (m *MemoryStore) ApplyDelta(_ context.Context, id uuid.UUID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return apperr.NotFound("account", id)
	}
	a.Balance = a.Balance.Add(delta)
	m.accounts[id] = a
	return nil
}

func (m *MemoryStore) SystemAccount(_ context.Context, kind, name string, createdAt time.Time) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.accountOrder {
		if a := m.accounts[id]; a.IsSystem && a.SystemKind == kind {
			return &a, nil
		}
	}
	a := models.Account{
		ID:         uuid.New(),
		Name:       name,
		Balance:    decimal.Zero,
		IsSystem:   true,
		SystemKind: kind,
		CreatedAt:  createdAt,
	}
	m.accounts[a.ID] = a
	m.accountOrder = append(m.accountOrder, a.ID)
	return &a, nil
}

func (m *MemoryStore) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, *tx)
	return nil
}

func (m *MemoryStore) ListByReference(_ context.Context, referenceID uuid.UUID, referenceType string) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := []*models.Transaction{}
	for _, tx := range m.transactions {
		if tx.ReferenceID == referenceID && tx.ReferenceType == referenceType {
			tx := tx
			txs = append(txs, &tx)
		}
	}
	return txs, nil
}

// TransactionCount is the size of the whole log.
func (m *MemoryStore) TransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *MemoryStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[loan.ID]; ok {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	m.loans[loan.ID] = *loan
	m.loanOrder = append(m.loanOrder, loan.ID)
	return nil
}

func (m *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, apperr.NotFound("loan", id)
	}
	return &l, nil
}

func (m *MemoryStore) UpdateLoan(_ context.Context, loan, prev *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.loans[loan.ID]
	if !ok {
		return apperr.NotFound("loan", loan.ID)
	}
	if !current.AmountRepaid.Equal(prev.AmountRepaid) || current.Status != prev.Status {
		return loanChanged(loan.ID)
	}
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MemoryStore) DeleteLoan(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[id]; !ok {
		return apperr.NotFound("loan", id)
	}
	delete(m.loans, id)
	m.loanOrder = slices.DeleteFunc(m.loanOrder, func(v uuid.UUID) bool { return v == id })
	m.transactions = slices.DeleteFunc(m.transactions, func(tx models.Transaction) bool {
		return tx.ReferenceType == models.ReferenceTypeLoan && tx.ReferenceID == id
	})
	return nil
}

func (m *MemoryStore) ListLoans(_ context.Context, direction models.Direction) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loans := []*models.Loan{}
	for _, id := range m.loanOrder {
		l := m.loans[id]
		if direction != "" && l.Direction != direction {
			continue
		}
		loans = append(loans, &l)
	}
	return loans, nil
}

func (m *MemoryStore) CreateReminder(_ context.Context, r *models.RenewalReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[r.ID]; ok {
		return fmt.Errorf("reminder %s already exists", r.ID)
	}
	m.reminders[r.ID] = copyReminder(r)
	m.remOrder = append(m.remOrder, r.ID)
	return nil
}

func (m *MemoryStore) GetReminder(_ context.Context, id uuid.UUID) (*models.RenewalReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, apperr.NotFound("renewal reminder", id)
	}
	c := copyReminder(&r)
	return &c, nil
}

func (m *MemoryStore) TransitionReminder(_ context.Context, id uuid.UUID, from, to models.ReminderStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return false, apperr.NotFound("renewal reminder", id)
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	m.reminders[id] = r
	return true, nil
}

func (m *MemoryStore) ListReminders(_ context.Context, status models.ReminderStatus) ([]*models.RenewalReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.RenewalReminder{}
	for _, id := range m.remOrder {
		r := m.reminders[id]
		if status != "" && r.Status != status {
			continue
		}
		c := copyReminder(&r)
		out = append(out, &c)
	}
	slices.SortStableFunc(out, func(a, b *models.RenewalReminder) int {
		return a.RenewalDate.Compare(b.RenewalDate)
	})
	return out, nil
}

func copyReminder(r *models.RenewalReminder) models.RenewalReminder {
	c := *r
	c.ReminderDays = slices.Clone(r.ReminderDays)
	return c
}

func (m *MemoryStore) CreateObligation(_ context.Context, o *models.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.obligations[o.ID]; ok {
		return fmt.Errorf("obligation %s already exists", o.ID)
	}
	m.obligations[o.ID] = *o
	return nil
}

func (m *MemoryStore) GetObligation(_ context.Context, id uuid.UUID) (*models.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.obligations[id]
	if !ok {
		return nil, apperr.NotFound("obligation", id)
	}
	return &o, nil
}

func (m *MemoryStore) UpdateObligation(_ context.Context, o *models.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.obligations[o.ID]; !ok {
		return apperr.NotFound("obligation", o.ID)
	}
	m.obligations[o.ID] = *o
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context, kind models.ObligationKind, withinDays int, today time.Time) ([]*models.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Obligation{}
	for _, o := range m.obligations {
		if !o.IsActive || (kind != "" && o.Kind != kind) {
			continue
		}
		if clock.DaysBetween(today, o.NextDueDate) > withinDays {
			continue
		}
		o := o
		out = append(out, &o)
	}
	slices.SortFunc(out, func(a, b *models.Obligation) int {
		if c := a.NextDueDate.Compare(b.NextDueDate); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
