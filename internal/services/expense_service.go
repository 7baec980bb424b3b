package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/ports"
)

// RecentExpenses is how many records the dashboard shows below the overview.
const RecentExpenses = 5

// EventPublisher sends expense change events to the mirror worker.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// Recorder counts service-level outcomes; *metrics.Metrics satisfies it.
type Recorder interface {
	Event(eventType, outcome string)
	CacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) Event(string, string) {}
func (nopRecorder) CacheLookup(bool)     {}

// Store is everything the service needs from a backend.
type Store interface {
	ports.ExpenseStore
	ports.CategoryLister
	ports.DashboardReader
}

// Dashboard is the month overview plus the latest records.
type Dashboard struct {
	Overview core.MonthOverview `json:"overview"`
	Recent   []core.Expense     `json:"recent"`
}

// ExpenseService validates and persists expenses, keeps the dashboard cache
// coherent and publishes change events.
type ExpenseService struct {
	store     Store
	publisher EventPublisher
	overviews cache.Cache[core.MonthOverview]
	recorder  Recorder
}

type Option func(*ExpenseService)

func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithOverviewCache(c cache.Cache[core.MonthOverview]) Option {
	return func(s *ExpenseService) { s.overviews = c }
}

func WithRecorder(r Recorder) Option {
	return func(s *ExpenseService) { s.recorder = r }
}

func NewExpenseService(store Store, opts ...Option) *ExpenseService {
	s := &ExpenseService{store: store, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExpenseService) CreateExpense(ctx context.Context, ownerID string, d core.ExpenseDraft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}
	e, err := s.store.CreateExpense(ctx, ownerID, d)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.changed(ctx, amqp.EventCreated, e)
	return e, nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, ownerID string, page core.Page) ([]core.Expense, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	items, err := s.store.ListExpenses(ctx, ownerID, page)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

// UpdateExpense replaces the editable fields of an owned expense.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	out, err := s.store.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.changed(ctx, amqp.EventUpdated, out)
	return out, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeleteExpense(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.changed(ctx, amqp.EventDeleted, core.Expense{ID: id, OwnerID: ownerID})
	return nil
}

func (s *ExpenseService) Categories(ctx context.Context, ownerID string) ([]string, error) {
	cats, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// MonthOverview returns the owner's totals for year+month, from cache when
// possible.
func (s *ExpenseService) MonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	key := overviewKey(ownerID, year, month)
	if s.overviews != nil {
		ov, ok := s.overviews.Get(key)
		s.recorder.CacheLookup(ok)
		if ok {
			return ov, nil
		}
	}
	ov, err := s.store.ReadMonthOverview(ctx, ownerID, year, month)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("read month overview: %w", err)
	}
	if s.overviews != nil {
		s.overviews.Set(key, ov)
	}
	return ov, nil
}

// Dashboard loads the overview and the most recent expenses concurrently.
func (s *ExpenseService) Dashboard(ctx context.Context, ownerID string, year, month int) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ov, err := s.MonthOverview(gctx, ownerID, year, month)
		d.Overview = ov
		return err
	})
	g.Go(func() error {
		recent, err := s.store.ListExpenses(gctx, ownerID, core.Page{Number: 1, Size: RecentExpenses})
		if err != nil {
			return fmt.Errorf("list recent expenses: %w", err)
		}
		d.Recent = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (s *ExpenseService) changed(ctx context.Context, t amqp.EventType, e core.Expense) {
	if s.overviews != nil {
		s.overviews.DeletePrefix(e.OwnerID + ":")
	}
	if s.publisher == nil {
		return
	}
	// The change is already persisted; a failed publish only delays the mirror.
	if err := s.publisher.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(t, e)); err != nil {
		s.recorder.Event(string(t), "failed")
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"type", t,
			"id", e.ID,
			"error", err)
		return
	}
	s.recorder.Event(string(t), "published")
}

func overviewKey(ownerID string, year, month int) string {
	return fmt.Sprintf("%s:%04d-%02d", ownerID, year, month)
}
