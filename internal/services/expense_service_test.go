package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// countingStore counts overview reads to observe caching.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	reads int
}

func (s *countingStore) ReadMonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.Store.ReadMonthOverview(ctx, ownerID, year, month)
}

func coffee() core.ExpenseDraft {
	return core.ExpenseDraft{
		Description: "Coffee",
		Amount:      core.Money{Cents: 575},
		Category:    "Dining Out",
		Date:        core.NewDate(2025, 1, 6),
	}
}

func TestExpenseService_CRUDPublishesEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewExpenseService(memory.New(), WithPublisher(pub))

	e, err := svc.CreateExpense(ctx, "u1", coffee())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.Amount = core.Money{Cents: 600}
	if _, err := svc.UpdateExpense(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.DeleteExpense(ctx, "u1", e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []amqp.EventType{amqp.EventCreated, amqp.EventUpdated, amqp.EventDeleted}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(pub.events))
	}
	for i, ev := range pub.events {
		if ev.Type != want[i] || ev.ID != e.ID || ev.OwnerID != "u1" {
			t.Fatalf("event %d = %+v", i, ev)
		}
	}
	if pub.events[1].AmountCents != 600 {
		t.Fatalf("update event carries %d cents", pub.events[1].AmountCents)
	}
}

func TestExpenseService_PublishFailureDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewExpenseService(memory.New(), WithPublisher(pub))
	if _, err := svc.CreateExpense(context.Background(), "u1", coffee()); err != nil {
		t.Fatalf("create should succeed when publishing fails: %v", err)
	}
}

func TestExpenseService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewExpenseService(memory.New())

	bad := coffee()
	bad.Description = ""
	if _, err := svc.CreateExpense(ctx, "u1", bad); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if _, err := svc.UpdateExpense(ctx, core.Expense{}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := svc.ListExpenses(ctx, "u1", core.Page{Number: 0, Size: 10}); !errors.Is(err, core.ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	if err := svc.DeleteExpense(ctx, "u1", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpenseService_OverviewCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}
	svc := NewExpenseService(store, WithOverviewCache(cache.NewLRUCache[core.MonthOverview](16, time.Minute)))

	if _, err := svc.CreateExpense(ctx, "u1", coffee()); err != nil {
		t.Fatalf("create: %v", err)
	}
	for range 3 {
		ov, err := svc.MonthOverview(ctx, "u1", 2025, 1)
		if err != nil || ov.Total.Cents != 575 {
			t.Fatalf("overview = %+v err=%v", ov, err)
		}
	}
	if store.reads != 1 {
		t.Fatalf("expected one store read, got %d", store.reads)
	}

	if _, err := svc.CreateExpense(ctx, "u1", coffee()); err != nil {
		t.Fatalf("create: %v", err)
	}
	ov, err := svc.MonthOverview(ctx, "u1", 2025, 1)
	if err != nil || ov.Total.Cents != 1150 {
		t.Fatalf("stale overview after mutation: %+v err=%v", ov, err)
	}
	if store.reads != 2 {
		t.Fatalf("expected a fresh read after mutation, got %d reads", store.reads)
	}
}

func TestExpenseService_Dashboard(t *testing.T) {
	ctx := context.Background()
	svc := NewExpenseService(memory.New())
	for day := 1; day <= 7; day++ {
		d := coffee()
		d.Date = core.NewDate(2025, 1, day)
		if _, err := svc.CreateExpense(ctx, "u1", d); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	dash, err := svc.Dashboard(ctx, "u1", 2025, 1)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Overview.Total.Cents != 7*575 {
		t.Fatalf("total = %d", dash.Overview.Total.Cents)
	}
	if len(dash.Recent) != RecentExpenses || dash.Recent[0].Date.Day() != 7 {
		t.Fatalf("unexpected recent list %+v", dash.Recent)
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	hits     int
	misses   int
}

func (r *countingRecorder) Event(t, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[t+"/"+outcome]++
}

func (r *countingRecorder) CacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestExpenseService_Recorder(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	pub := &recordingPublisher{}
	svc := NewExpenseService(memory.New(),
		WithPublisher(pub),
		WithRecorder(rec),
		WithOverviewCache(cache.NewLRUCache[core.MonthOverview](4, time.Minute)))

	if _, err := svc.CreateExpense(ctx, "u1", coffee()); err != nil {
		t.Fatalf("create: %v", err)
	}
	pub.err = errors.New("broker down")
	if _, err := svc.CreateExpense(ctx, "u1", coffee()); err != nil {
		t.Fatalf("create: %v", err)
	}
	for range 2 {
		if _, err := svc.MonthOverview(ctx, "u1", 2025, 1); err != nil {
			t.Fatalf("overview: %v", err)
		}
	}

	if rec.outcomes["created/published"] != 1 || rec.outcomes["created/failed"] != 1 {
		t.Fatalf("unexpected outcomes %v", rec.outcomes)
	}
	if rec.hits != 1 || rec.misses != 1 {
		t.Fatalf("hits=%d misses=%d", rec.hits, rec.misses)
	}
}
