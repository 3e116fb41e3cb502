package reminders

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/apperr"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/logger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/models"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemKind string

const (
	KindBill         ItemKind = "bill"
	KindSubscription ItemKind = "subscription"
	KindRenewal      ItemKind = "renewal"
)

func (k ItemKind) Valid() bool {
	return k == KindBill || k == KindSubscription || k == KindRenewal
}

type Bucket string

const (
	BucketOverdue  Bucket = "overdue"
	BucketToday    Bucket = "today"
	BucketUrgent   Bucket = "urgent"
	BucketUpcoming Bucket = "upcoming"
)

// Buckets in display order.
var Buckets = []Bucket{BucketOverdue, BucketToday, BucketUrgent, BucketUpcoming}

func bucketFor(days int) Bucket {
	switch {
	case days < 0:
		return BucketOverdue
	case days == 0:
		return BucketToday
	case days <= 3:
		return BucketUrgent
	default:
		return BucketUpcoming
	}
}

func bucketRank(b Bucket) int {
	for i, x := range Buckets {
		if x == b {
			return i
		}
	}
	return len(Buckets)
}

type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var badges = map[ItemKind]Badge{
	KindBill:         {Label: "Bill", Color: "blue"},
	KindSubscription: {Label: "Subscription", Color: "purple"},
	KindRenewal:      {Label: "Cancel reminder", Color: "orange"},
}

// Item is one entry of the feed, whatever its source.
type Item struct {
	ID        uuid.UUID        `json:"id"`
	Kind      ItemKind         `json:"kind"`
	Title     string           `json:"title"`
	Amount    decimal.Decimal  `json:"amount"`
	DueDate   time.Time        `json:"due_date"`
	DaysUntil int              `json:"days_until"`
	Bucket    Bucket           `json:"bucket"`
	Badge     Badge            `json:"badge"`
	Payable   bool             `json:"payable"`
	Frequency models.Frequency `json:"frequency,omitempty"`
}

type Group struct {
	Bucket Bucket `json:"bucket"`
	Items  []Item `json:"items"`
}

type Summary struct {
	Count        int              `json:"count"`
	ByKind       map[ItemKind]int `json:"by_kind"`
	ByBucket     map[Bucket]int   `json:"by_bucket"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	UrgentAmount decimal.Decimal  `json:"urgent_amount"` // overdue, today and urgent items
}

// Feed is the sorted list plus the same items partitioned by bucket.
type Feed struct {
	Items   []Item  `json:"items"`
	Groups  []Group `json:"groups"`
	Summary Summary `json:"summary"`
}

// Group returns the items of one bucket.
func (f *Feed) Group(b Bucket) []Item {
	for _, g := range f.Groups {
		if g.Bucket == b {
			return g.Items
		}
	}
	return nil
}

type FeedOptions struct {
	Kind       ItemKind // empty means every kind
	WithinDays int      // zero means the configured default
}

type FeedConfig struct {
	PaymentWindowDays int
	WithinDays        int
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{PaymentWindowDays: 3, WithinDays: 30}
}

// Aggregator builds the unified feed from obligations and renewal reminders.
type Aggregator struct {
	obligations store.ObligationStore
	reminders   store.ReminderStore
	clock       clock.Clock
	cfg         FeedConfig
}

func NewAggregator(o store.ObligationStore, r store.ReminderStore, c clock.Clock, cfg FeedConfig) *Aggregator {
	if c == nil {
		c = clock.System{}
	}
	if cfg.WithinDays <= 0 {
		cfg.WithinDays = DefaultFeedConfig().WithinDays
	}
	return &Aggregator{obligations: o, reminders: r, clock: c, cfg: cfg}
}

func (a *Aggregator) Feed(ctx context.Context, opts FeedOptions) (*Feed, error) {
	if opts.Kind != "" && !opts.Kind.Valid() {
		return nil, apperr.Validation("Unknown reminder kind %q", opts.Kind)
	}
	if opts.WithinDays < 0 {
		return nil, apperr.Validation("within_days cannot be negative")
	}
	within := opts.WithinDays
	if within == 0 {
		within = a.cfg.WithinDays
	}
	today := clock.Today(a.clock)

	var items []Item
	if opts.Kind != KindRenewal {
		obligations, err := a.obligations.ListActive(ctx, models.ObligationKind(opts.Kind), within, today)
		if err != nil {
			return nil, apperr.Dependency("failed to list obligations", err)
		}
		for _, o := range obligations {
			items = append(items, a.obligationItem(o, today))
		}
	}
	if opts.Kind == "" || opts.Kind == KindRenewal {
		active, err := a.reminders.ListReminders(ctx, models.ReminderStatusActive)
		if err != nil {
			return nil, apperr.Dependency("failed to list renewal reminders", err)
		}
		for _, r := range active {
			if clock.DaysBetween(today, r.RenewalDate) > within {
				continue
			}
			items = append(items, renewalItem(r, today))
		}
	}

	sortItems(items)
	return buildFeed(items), nil
}

func (a *Aggregator) obligationItem(o *models.Obligation, today time.Time) Item {
	days := clock.DaysBetween(today, o.NextDueDate)
	kind := ItemKind(o.Kind)
	return Item{
		ID:        o.ID,
		Kind:      kind,
		Title:     o.Title,
		Amount:    o.Amount,
		DueDate:   o.NextDueDate,
		DaysUntil: days,
		Bucket:    bucketFor(days),
		Badge:     badges[kind],
		Payable:   days <= a.cfg.PaymentWindowDays,
		Frequency: o.Frequency,
	}
}

// renewalItem is never payable; renewals move through the reminder lifecycle.
func renewalItem(r *models.RenewalReminder, today time.Time) Item {
	days := clock.DaysBetween(today, r.RenewalDate)
	return Item{
		ID:        r.ID,
		Kind:      KindRenewal,
		Title:     r.Title,
		Amount:    r.ExpectedAmount,
		DueDate:   r.RenewalDate,
		DaysUntil: days,
		Bucket:    bucketFor(days),
		Badge:     badges[KindRenewal],
	}
}

// sortItems orders by bucket, then days until due, then kind and title so equal
// items always come out in the same order.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := bucketRank(a.Bucket), bucketRank(b.Bucket); ra != rb {
			return ra < rb
		}
		if a.DaysUntil != b.DaysUntil {
			return a.DaysUntil < b.DaysUntil
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c < 0
		}
		return a.ID.String() < b.ID.String()
	})
}

func buildFeed(items []Item) *Feed {
	f := &Feed{
		Items: items,
		Summary: Summary{
			ByKind:       map[ItemKind]int{},
			ByBucket:     map[Bucket]int{},
			TotalAmount:  decimal.Zero,
			UrgentAmount: decimal.Zero,
		},
	}
	if f.Items == nil {
		f.Items = []Item{}
	}

	grouped := make(map[Bucket][]Item, len(Buckets))
	for _, it := range items {
		grouped[it.Bucket] = append(grouped[it.Bucket], it)
		f.Summary.Count++
		f.Summary.ByKind[it.Kind]++
		f.Summary.ByBucket[it.Bucket]++
		f.Summary.TotalAmount = f.Summary.TotalAmount.Add(it.Amount)
		if it.Bucket != BucketUpcoming {
			f.Summary.UrgentAmount = f.Summary.UrgentAmount.Add(it.Amount)
		}
	}
	for _, b := range Buckets {
		g := grouped[b]
		if g == nil {
			g = []Item{}
		}
		f.Groups = append(f.Groups, Group{Bucket: b, Items: g})
	}
	return f
}

// ObligationInput seeds a recurring bill or subscription.
type ObligationInput struct {
	Title       string
	Amount      decimal.Decimal
	NextDueDate time.Time
	Frequency   models.Frequency
	Kind        models.ObligationKind
}

func (a *Aggregator) CreateObligation(ctx context.Context, in ObligationInput) (*models.Obligation, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, apperr.Validation("Title is required")
	case !in.Amount.IsPositive():
		return nil, apperr.Validation("Amount must be greater than zero")
	case in.NextDueDate.IsZero():
		return nil, apperr.Validation("Next due date is required")
	case !in.Frequency.Valid():
		return nil, apperr.Validation("Unknown frequency %q", in.Frequency)
	case !in.Kind.Valid():
		return nil, apperr.Validation("Unknown obligation kind %q", in.Kind)
	}

	now := a.clock.Now()
	o := &models.Obligation{
		ID:          uuid.New(),
		Title:       title,
		Amount:      in.Amount,
		NextDueDate: in.NextDueDate,
		Frequency:   in.Frequency,
		Kind:        in.Kind,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.obligations.CreateObligation(ctx, o); err != nil {
		return nil, apperr.Dependency("failed to store obligation", err)
	}
	return o, nil
}

// MarkObligationPaid records a payment and rolls the obligation to its next due date.
// Payment is refused while the due date is further out than the payment window.
func (a *Aggregator) MarkObligationPaid(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	o, err := a.obligations.GetObligation(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("failed to load obligation", err)
	}
	if !o.IsActive {
		return nil, apperr.NotFound("obligation", id)
	}

	now := a.clock.Now()
	days := clock.DaysBetween(now, o.NextDueDate)
	if days > a.cfg.PaymentWindowDays {
		return nil, apperr.New(apperr.KindNotYetPayable,
			"%s is due in %d days and can be paid from %d days before its due date",
			o.Title, days, a.cfg.PaymentWindowDays)
	}

	next, err := NextDueDate(o.NextDueDate, o.Frequency)
	if err != nil {
		return nil, err
	}
	paidFor := o.NextDueDate
	o.NextDueDate = next
	o.LastPaidAt = &now
	o.UpdatedAt = now
	if err := a.obligations.UpdateObligation(ctx, o); err != nil {
		return nil, apperr.Dependency("failed to update obligation", err)
	}

	logger.Info("obligation paid", "obligation_id", o.ID, "paid_for", paidFor.Format(time.DateOnly),
		"next_due", next.Format(time.DateOnly))
	return o, nil
}
