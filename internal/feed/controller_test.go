package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"finboard/internal/core"
	"finboard/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu       sync.Mutex
	pages    map[int][]core.Expense
	fetchErr error
	fetches  []int
	tokens   []string
	block    chan struct{}
	started  chan struct{}

	addErr, updateErr, deleteErr error
	deletes                      []string
	nextID                       int
}

func (f *fakeAPI) FetchExpenses(ctx context.Context, token string, page, pageSize int) ([]core.Expense, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, page)
	f.tokens = append(f.tokens, token)
	items, err, block, started := f.pages[page], f.fetchErr, f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return slices.Clone(items), nil
}

func (f *fakeAPI) AddExpense(_ context.Context, d core.ExpenseDraft, _ string) (core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return core.Expense{}, f.addErr
	}
	f.nextID++
	return core.Expense{ID: fmt.Sprintf("new-%d", f.nextID)}.WithDraft(d), nil
}

func (f *fakeAPI) UpdateExpense(_ context.Context, e core.Expense, _ string) (core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return core.Expense{}, f.updateErr
	}
	return e, nil
}

func (f *fakeAPI) DeleteExpense(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// countingAuth keeps its token on Logout, so only the controller's own
// bookkeeping can prevent a refetch.
type countingAuth struct {
	mu      sync.Mutex
	token   string
	logouts int
}

func (a *countingAuth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *countingAuth) Logout() {
	a.mu.Lock()
	a.logouts++
	a.mu.Unlock()
}

func (a *countingAuth) setToken(t string) {
	a.mu.Lock()
	a.token = t
	a.mu.Unlock()
}

type recorder struct {
	mu        sync.Mutex
	notes     []Notification
	redirects int
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) RedirectToLogin() {
	r.mu.Lock()
	r.redirects++
	r.mu.Unlock()
}

func (r *recorder) errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Severity == SeverityError {
			n++
		}
	}
	return n
}

func exp(id, cat string, y, m, d int) core.Expense {
	return core.Expense{
		ID:          id,
		Description: "desc " + id,
		Amount:      core.Money{Cents: 100},
		Category:    cat,
		Date:        core.NewDate(y, m, d),
	}
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Component: log.ComponentFeed, Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestController(t *testing.T, api ExpenseAPI, auth AuthContext, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithNotifier(rec), WithNavigator(rec), WithLogger(quietLogger())}, opts...)
	c := NewController(api, auth, opts...)
	t.Cleanup(func() { c.Close() })
	return c, rec
}

func ids(items []core.Expense) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

func assertSorted(t *testing.T, items []core.Expense) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		if items[i].Date.After(items[i-1].Date.Time) {
			t.Fatalf("items not sorted at %d: %s after %s", i, items[i].Date, items[i-1].Date)
		}
	}
}

func twoMonthPages() map[int][]core.Expense {
	return map[int][]core.Expense{
		1: {
			exp("p1-1", "Rent", 2025, 2, 1),
			exp("p1-2", "Food", 2025, 1, 28),
			exp("p1-3", "Food", 2025, 2, 14),
			exp("p1-4", "Travel", 2025, 1, 20),
			exp("p1-5", "Food", 2025, 2, 3),
			exp("p1-6", "Dining Out", 2025, 1, 15),
			exp("p1-7", "Food", 2025, 2, 10),
			exp("p1-8", "Utilities", 2025, 1, 10),
			exp("p1-9", "Food", 2025, 2, 20),
			exp("p1-10", "Food", 2025, 1, 8),
		},
		2: {
			exp("p2-1", "Food", 2025, 1, 5),
			exp("p2-2", "Rent", 2025, 1, 1),
			exp("p2-3", "Food", 2025, 1, 7),
		},
	}
}

func TestLoadTwoPagesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: twoMonthPages()}
	c, _ := newTestController(t, api, NewMemorySession("tok"), WithPageSize(10))

	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("first load: %v", err)
	}
	s := c.State()
	if s.Exhausted || s.Cursor != 2 || len(s.Items) != 10 || s.Loading {
		t.Fatalf("after first page: exhausted=%v cursor=%d items=%d loading=%v", s.Exhausted, s.Cursor, len(s.Items), s.Loading)
	}
	assertSorted(t, s.Items)

	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("second load: %v", err)
	}
	s = c.State()
	if !s.Exhausted || s.Cursor != 3 || len(s.Items) != 13 {
		t.Fatalf("after second page: exhausted=%v cursor=%d items=%d", s.Exhausted, s.Cursor, len(s.Items))
	}
	assertSorted(t, s.Items)
	if s.Items[0].ID != "p1-9" || s.Items[12].ID != "p2-2" {
		t.Fatalf("unexpected order %v", ids(s.Items))
	}

	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("exhausted load: %v", err)
	}
	if c.OnScroll(Viewport{ScrollTop: 900, ViewportHeight: 100, DocumentHeight: 1000}) {
		t.Fatal("scroll on an exhausted feed started a load")
	}
	c.Wait()
	if diff := cmp.Diff([]int{1, 2}, api.fetches); diff != "" {
		t.Fatalf("fetched pages (-want +got):\n%s", diff)
	}
}

func TestLoadDeduplicatesById(t *testing.T) {
	api := &fakeAPI{pages: map[int][]core.Expense{
		1: {exp("a", "Food", 2025, 1, 3), exp("b", "Food", 2025, 1, 2)},
		2: {exp("b", "Rent", 2025, 1, 2), exp("c", "Food", 2025, 1, 1)},
	}}
	c, _ := newTestController(t, api, NewMemorySession("tok"), WithPageSize(2))
	for range 2 {
		if err := c.LoadNextPage(context.Background()); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	s := c.State()
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids(s.Items)); diff != "" {
		t.Fatalf("items (-want +got):\n%s", diff)
	}
	if s.Items[1].Category != "Rent" {
		t.Fatalf("expected the later copy of b, got %+v", s.Items[1])
	}
}

func TestAddExpenseInsertsAtSortedPosition(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: map[int][]core.Expense{1: {
		exp("a", "Food", 2025, 1, 9),
		exp("b", "Rent", 2025, 1, 7),
		exp("c", "Food", 2025, 1, 5),
		exp("d", "Food", 2025, 1, 1),
	}}}
	c, rec := newTestController(t, api, NewMemorySession("tok"))
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	coffee, err := c.AddExpense(ctx, core.ExpenseDraft{
		Description: "Coffee",
		Amount:      core.Money{Cents: 575},
		Category:    "Dining Out",
		Date:        core.NewDate(2025, 1, 6),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s := c.State()
	if diff := cmp.Diff([]string{"a", "b", coffee.ID, "c", "d"}, ids(s.Items)); diff != "" {
		t.Fatalf("items (-want +got):\n%s", diff)
	}
	if len(rec.notes) != 1 || rec.notes[0].Severity != SeveritySuccess {
		t.Fatalf("expected one success notification, got %+v", rec.notes)
	}
}

func TestDeriveCategories(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: map[int][]core.Expense{1: {
		exp("a", "Rent", 2025, 1, 9),
		exp("b", "Food", 2025, 1, 7),
		exp("c", "Food", 2025, 1, 5),
	}}}
	c, _ := newTestController(t, api, NewMemorySession("tok"))

	if got := c.DeriveCategories(); len(got) != 0 {
		t.Fatalf("expected no categories on an empty feed, got %v", got)
	}
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"Food", "Rent"}, c.DeriveCategories()); diff != "" {
		t.Fatalf("categories (-want +got):\n%s", diff)
	}

	_, err := c.AddExpense(ctx, core.ExpenseDraft{
		Description: "Coffee", Amount: core.Money{Cents: 575}, Category: "Dining Out", Date: core.NewDate(2025, 1, 6),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got := c.DeriveCategories()
	if diff := cmp.Diff([]string{"Dining Out", "Food", "Rent"}, got); diff != "" {
		t.Fatalf("categories (-want +got):\n%s", diff)
	}

	got[0] = "mutated"
	if c.DeriveCategories()[0] != "Dining Out" {
		t.Fatal("caller mutation leaked into the memoised categories")
	}
}

func TestUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: map[int][]core.Expense{1: {
		exp("a", "Food", 2025, 1, 9),
		exp("b", "Rent", 2025, 1, 7),
		exp("c", "Food", 2025, 1, 5),
	}}}
	c, _ := newTestController(t, api, NewMemorySession("tok"))
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	moved := exp("c", "Travel", 2025, 1, 10)
	if _, err := c.UpdateExpense(ctx, moved); err != nil {
		t.Fatalf("update: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, ids(c.State().Items)); diff != "" {
		t.Fatalf("after update (-want +got):\n%s", diff)
	}

	if _, err := c.UpdateExpense(ctx, exp("zzz", "Food", 2025, 1, 1)); err != nil {
		t.Fatalf("update absent: %v", err)
	}
	if len(c.State().Items) != 3 {
		t.Fatal("updating an absent record inserted it")
	}

	if err := c.RemoveExpense(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	before := c.State().Items
	if err := c.RemoveExpense(ctx, "does-not-exist"); err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
	if diff := cmp.Diff(before, c.State().Items); diff != "" {
		t.Fatalf("removing an unknown id changed items (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "does-not-exist"}, api.deletes); diff != "" {
		t.Fatalf("deletes (-want +got):\n%s", diff)
	}
}

func TestMutationFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: map[int][]core.Expense{1: {exp("a", "Food", 2025, 1, 9)}}}
	auth := &countingAuth{token: "tok"}
	c, rec := newTestController(t, api, auth)
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := c.State()

	api.addErr = errors.New("boom")
	api.updateErr = fmt.Errorf("rejected: %w", core.ErrUnauthorized)
	api.deleteErr = errors.New("network down")

	if _, err := c.AddExpense(ctx, core.ExpenseDraft{Description: "x", Category: "y", Date: core.NewDate(2025, 1, 1)}); err == nil {
		t.Fatal("expected add error")
	}
	if _, err := c.UpdateExpense(ctx, exp("a", "Rent", 2025, 1, 1)); err == nil {
		t.Fatal("expected update error")
	}
	if err := c.RemoveExpense(ctx, "a"); err == nil {
		t.Fatal("expected remove error")
	}

	if diff := cmp.Diff(before, c.State()); diff != "" {
		t.Fatalf("state changed (-want +got):\n%s", diff)
	}
	if rec.errors() != 3 {
		t.Fatalf("expected 3 error notifications, got %+v", rec.notes)
	}
	if auth.logouts != 0 || rec.redirects != 0 {
		t.Fatal("a mutation failure ended the session")
	}
}

func TestMutationsRequireToken(t *testing.T) {
	api := &fakeAPI{}
	c, rec := newTestController(t, api, NewMemorySession(""))
	if _, err := c.AddExpense(context.Background(), core.ExpenseDraft{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := c.RemoveExpense(context.Background(), "a"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if rec.errors() != 2 || len(api.deletes) != 0 {
		t.Fatalf("unexpected calls: notes=%+v deletes=%v", rec.notes, api.deletes)
	}
}

func TestLoadWithoutTokenDoesNothing(t *testing.T) {
	api := &fakeAPI{pages: twoMonthPages()}
	c, _ := newTestController(t, api, NewMemorySession(""))
	if err := c.LoadNextPage(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := c.State()
	if s.Loading || len(s.Items) != 0 || api.fetchCount() != 0 {
		t.Fatalf("unexpected state %+v fetches=%d", s, api.fetchCount())
	}
}

func TestAnyFailurePolicyLogsOutOnce(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: twoMonthPages(), fetchErr: errors.New("dial tcp: connection refused")}
	auth := &countingAuth{token: "tok"}
	c, rec := newTestController(t, api, auth, WithFailurePolicy(LogoutOnAnyFailure))

	if err := c.LoadNextPage(ctx); err == nil {
		t.Fatal("expected load error")
	}
	if auth.logouts != 1 || rec.redirects != 1 {
		t.Fatalf("logouts=%d redirects=%d", auth.logouts, rec.redirects)
	}

	api.fetchErr = nil
	_ = c.LoadNextPage(ctx)
	c.OnScroll(Viewport{ScrollTop: 950, ViewportHeight: 50, DocumentHeight: 1000})
	c.Wait()
	if api.fetchCount() != 1 || auth.logouts != 1 {
		t.Fatalf("refetched before re-authentication: fetches=%d logouts=%d", api.fetchCount(), auth.logouts)
	}
	if s := c.State(); s.Loading {
		t.Fatal("loading left set after failure")
	}

	auth.setToken("tok-2")
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load after re-auth: %v", err)
	}
	s := c.State()
	if len(s.Items) != 10 || s.Cursor != 2 {
		t.Fatalf("expected a fresh feed, got cursor=%d items=%d", s.Cursor, len(s.Items))
	}
	if api.tokens[len(api.tokens)-1] != "tok-2" {
		t.Fatalf("fetched with %q", api.tokens[len(api.tokens)-1])
	}
}

func TestUnauthorizedPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("network error is retried", func(t *testing.T) {
		api := &fakeAPI{pages: twoMonthPages(), fetchErr: errors.New("timeout")}
		auth := &countingAuth{token: "tok"}
		c, rec := newTestController(t, api, auth)

		if err := c.LoadNextPage(ctx); err == nil {
			t.Fatal("expected load error")
		}
		if auth.logouts != 0 || rec.redirects != 0 || rec.errors() != 1 {
			t.Fatalf("logouts=%d redirects=%d notes=%+v", auth.logouts, rec.redirects, rec.notes)
		}
		if s := c.State(); s.Cursor != 1 || s.Loading {
			t.Fatalf("unexpected state %+v", s)
		}

		api.fetchErr = nil
		if err := c.LoadNextPage(ctx); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if diff := cmp.Diff([]int{1, 1}, api.fetches); diff != "" {
			t.Fatalf("fetches (-want +got):\n%s", diff)
		}
	})

	t.Run("401 ends the session", func(t *testing.T) {
		api := &fakeAPI{fetchErr: fmt.Errorf("fetch: %w", core.ErrUnauthorized)}
		session := NewMemorySession("tok")
		var callbacks int
		session.OnLogout(func() { callbacks++ })
		c, rec := newTestController(t, api, session)

		if err := c.LoadNextPage(ctx); !errors.Is(err, core.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if callbacks != 1 || rec.redirects != 1 || session.Token() != "" {
			t.Fatalf("callbacks=%d redirects=%d token=%q", callbacks, rec.redirects, session.Token())
		}
		_ = c.LoadNextPage(ctx)
		if api.fetchCount() != 1 {
			t.Fatalf("fetched while signed out: %d", api.fetchCount())
		}
	})
}

func TestLoadFailureNotifiesUnderDefaultPolicy(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{pages: twoMonthPages(), fetchErr: errors.New("502 bad gateway")}
	auth := &countingAuth{token: "tok"}
	logger := log.New(log.Config{Component: log.ComponentFeed, Handler: slog.NewTextHandler(&buf, nil)})
	c, rec := newTestController(t, api, auth, WithLogger(logger))

	if err := c.LoadNextPage(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if rec.errors() != 1 || rec.notes[0].Title != "Could not load expenses" {
		t.Fatalf("unexpected notifications %+v", rec.notes)
	}
	if !strings.Contains(buf.String(), "Page load failed") {
		t.Fatalf("failure not logged: %q", buf.String())
	}
	if auth.logouts != 0 || rec.redirects != 0 {
		t.Fatalf("logouts=%d redirects=%d", auth.logouts, rec.redirects)
	}
}

func TestCallerCancelDuringLoadIsSilent(t *testing.T) {
	api := &fakeAPI{
		pages:   twoMonthPages(),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	auth := &countingAuth{token: "tok"}
	c, rec := newTestController(t, api, auth)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.LoadNextPage(ctx) }()
	<-api.started
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rec.notes) != 0 || auth.logouts != 0 {
		t.Fatalf("cancellation surfaced: logouts=%d notes=%+v", auth.logouts, rec.notes)
	}
	if s := c.State(); s.Loading || s.Cursor != 1 {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestWaitDuringConcurrentOperations(t *testing.T) {
	api := &fakeAPI{pages: twoMonthPages()}
	c, _ := newTestController(t, api, NewMemorySession("tok"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = c.AddExpense(ctx, core.ExpenseDraft{
				Description: fmt.Sprintf("item %d", i),
				Amount:      core.Money{Cents: 100},
				Category:    "Food",
				Date:        core.NewDate(2025, 3, 1),
			})
			c.OnScroll(Viewport{ScrollTop: 1000, ViewportHeight: 0, DocumentHeight: 1000})
		}()
		go func() {
			defer wg.Done()
			c.Wait()
		}()
	}
	wg.Wait()
	c.Wait()

	if s := c.State(); s.Loading {
		t.Fatalf("loading still set after Wait: %+v", s)
	}
}

func TestOnScrollSingleFlight(t *testing.T) {
	api := &fakeAPI{
		pages:   twoMonthPages(),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c, _ := newTestController(t, api, NewMemorySession("tok"))

	far := Viewport{ScrollTop: 0, ViewportHeight: 500, DocumentHeight: 2000}
	near := Viewport{ScrollTop: 1450, ViewportHeight: 500, DocumentHeight: 2000}
	if c.OnScroll(far) {
		t.Fatal("scroll far from the bottom started a load")
	}
	if !c.OnScroll(near) {
		t.Fatal("scroll near the bottom did not start a load")
	}
	<-api.started
	if !c.State().Loading {
		t.Fatal("loading not set while a fetch is outstanding")
	}
	if c.OnScroll(near) {
		t.Fatal("a second load started while one was outstanding")
	}
	if err := c.LoadNextPage(context.Background()); err != nil {
		t.Fatalf("overlapping load: %v", err)
	}

	close(api.block)
	c.Wait()
	if api.fetchCount() != 1 {
		t.Fatalf("expected one fetch, got %d", api.fetchCount())
	}
	if s := c.State(); s.Loading || s.Cursor != 2 {
		t.Fatalf("unexpected state after load %+v", s)
	}
}

func TestMutationsDuringLoadAreReconciled(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		pages: map[int][]core.Expense{1: {
			exp("a", "Food", 2025, 1, 9),
			exp("b", "Rent", 2025, 1, 7),
			exp("c", "Food", 2025, 1, 5),
		}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c, _ := newTestController(t, api, NewMemorySession("tok"), WithPageSize(3))

	if !c.OnScroll(Viewport{ScrollTop: 0, ViewportHeight: 100, DocumentHeight: 100}) {
		t.Fatal("load not started")
	}
	<-api.started

	added, err := c.AddExpense(ctx, core.ExpenseDraft{
		Description: "Coffee", Amount: core.Money{Cents: 575}, Category: "Dining Out", Date: core.NewDate(2025, 1, 6),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	updated := exp("a", "Travel", 2025, 1, 9)
	if _, err := c.UpdateExpense(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.RemoveExpense(ctx, "b"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	close(api.block)
	c.Wait()

	s := c.State()
	if diff := cmp.Diff([]string{"a", added.ID, "c"}, ids(s.Items)); diff != "" {
		t.Fatalf("items (-want +got):\n%s", diff)
	}
	if s.Items[0].Category != "Travel" {
		t.Fatalf("page copy overwrote the confirmed update: %+v", s.Items[0])
	}
}

func TestCloseCancelsInFlightLoad(t *testing.T) {
	api := &fakeAPI{
		pages:   twoMonthPages(),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	auth := &countingAuth{token: "tok"}
	rec := &recorder{}
	c := NewController(api, auth,
		WithNotifier(rec), WithNavigator(rec), WithLogger(quietLogger()),
		WithFailurePolicy(LogoutOnAnyFailure))

	if !c.OnScroll(Viewport{ScrollTop: 1000, ViewportHeight: 0, DocumentHeight: 1000}) {
		t.Fatal("load not started")
	}
	<-api.started
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if auth.logouts != 0 || len(rec.notes) != 0 {
		t.Fatalf("cancellation treated as a failure: logouts=%d notes=%+v", auth.logouts, rec.notes)
	}
	if err := c.LoadNextPage(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := c.AddExpense(context.Background(), core.ExpenseDraft{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if c.OnScroll(Viewport{}) {
		t.Fatal("scroll after close started a load")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestTokenChangeResetsFeed(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{pages: twoMonthPages()}
	session := NewMemorySession("tok")
	c, _ := newTestController(t, api, session)
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	session.Logout()
	if s := c.State(); len(s.Items) != 0 || s.Cursor != 1 {
		t.Fatalf("feed kept after logout: %+v", s)
	}
	session.SetToken("tok-2")
	if err := c.LoadNextPage(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]int{1, 1}, api.fetches); diff != "" {
		t.Fatalf("fetches (-want +got):\n%s", diff)
	}
}

func TestViewportNearBottom(t *testing.T) {
	cases := []struct {
		v    Viewport
		want bool
	}{
		{Viewport{ScrollTop: 0, ViewportHeight: 800, DocumentHeight: 2000}, false},
		{Viewport{ScrollTop: 1099, ViewportHeight: 800, DocumentHeight: 2000}, false},
		{Viewport{ScrollTop: 1100, ViewportHeight: 800, DocumentHeight: 2000}, true},
		{Viewport{ScrollTop: 1200, ViewportHeight: 800, DocumentHeight: 2000}, true},
		{Viewport{ScrollTop: 0, ViewportHeight: 800, DocumentHeight: 500}, true},
	}
	for i, tc := range cases {
		if got := tc.v.NearBottom(DefaultScrollThreshold); got != tc.want {
			t.Fatalf("case %d: NearBottom(%+v) = %v, want %v", i, tc.v, got, tc.want)
		}
	}
}

func TestParseFailurePolicy(t *testing.T) {
	for _, p := range []FailurePolicy{LogoutOnUnauthorized, LogoutOnAnyFailure} {
		got, err := ParseFailurePolicy(p.String())
		if err != nil || got != p {
			t.Fatalf("round trip %v: got %v err=%v", p, got, err)
		}
	}
	if _, err := ParseFailurePolicy("sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
