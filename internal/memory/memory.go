package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finboard/internal/core"
	"finboard/internal/ports"
)

// Ensure interface conformance
var (
	_ ports.ExpenseStore    = (*Store)(nil)
	_ ports.UserStore       = (*Store)(nil)
	_ ports.CategoryLister  = (*Store)(nil)
	_ ports.DashboardReader = (*Store)(nil)
	_ ports.Pinger          = (*Store)(nil)
)

type record struct {
	expense   core.Expense
	createdAt time.Time
	seq       int64
}

// Store keeps users and expenses in process memory.
type Store struct {
	mu      sync.Mutex
	seq     int64
	users   map[string]core.User // by normalised email
	records map[string]*record   // by expense id
	now     func() time.Time
}

func New() *Store {
	return &Store{
		users:   make(map[string]core.User),
		records: make(map[string]*record),
		now:     time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(u.Email)
	if _, ok := s.users[key]; ok {
		return fmt.Errorf("create user %s: %w", u.Email, core.ErrConflict)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[key] = u
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[normalizeEmail(email)]
	if !ok {
		return core.User{}, fmt.Errorf("get user %s: %w", email, core.ErrNotFound)
	}
	return u, nil
}

// CreateExpense stores the draft and assigns a fresh id.
func (s *Store) CreateExpense(_ context.Context, ownerID string, d core.ExpenseDraft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := core.Expense{ID: uuid.NewString(), OwnerID: ownerID}.WithDraft(d)
	s.records[e.ID] = &record{expense: e, createdAt: s.now(), seq: s.seq}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, ownerID string, page core.Page) ([]core.Expense, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	owned := s.ownedLocked(ownerID)
	s.mu.Unlock()

	start := page.Offset()
	if start >= len(owned) {
		return []core.Expense{}, nil
	}
	end := start + page.Size
	if end > len(owned) {
		end = len(owned)
	}
	out := make([]core.Expense, 0, end-start)
	for _, r := range owned[start:end] {
		out = append(out, r.expense)
	}
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.expense.OwnerID != ownerID {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
	}
	return r.expense, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[e.ID]
	if !ok || r.expense.OwnerID != e.OwnerID {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", e.ID, core.ErrNotFound)
	}
	r.expense = r.expense.WithDraft(e.Draft())
	return r.expense, nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.expense.OwnerID != ownerID {
		return fmt.Errorf("delete expense %s: %w", id, core.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// ListCategories returns the owner's distinct categories alphabetically.
func (s *Store) ListCategories(_ context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, r := range s.records {
		if r.expense.OwnerID == ownerID {
			seen[r.expense.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ReadMonthOverview(_ context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	s.mu.Lock()
	owned := s.ownedLocked(ownerID)
	s.mu.Unlock()

	items := make([]core.Expense, 0, len(owned))
	for _, r := range owned {
		items = append(items, r.expense)
	}
	ov := core.Summarize(year, month, items)
	sort.SliceStable(ov.ByCategory, func(i, j int) bool {
		return ov.ByCategory[i].Amount.Cents > ov.ByCategory[j].Amount.Cents
	})
	return ov, nil
}

// ownedLocked returns the owner's records in listing order: date descending,
// then creation order. Callers hold s.mu.
func (s *Store) ownedLocked(ownerID string) []*record {
	var owned []*record
	for _, r := range s.records {
		if r.expense.OwnerID == ownerID {
			cp := *r
			owned = append(owned, &cp)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		di, dj := owned[i].expense.Date, owned[j].expense.Date
		if !di.Equal(dj.Time) {
			return di.After(dj.Time)
		}
		return owned[i].seq < owned[j].seq
	})
	return owned
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
