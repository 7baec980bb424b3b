package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"finboard/internal/core"
	"finboard/internal/log"
)

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize sets the page size; non-positive values keep the default.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithFailurePolicy selects which load failures end the session.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithNavigator sets where the user is sent after a forced logout.
func WithNavigator(n Navigator) Option {
	return func(c *Controller) { c.nav = n }
}

// WithNotifier sets the sink for user-facing notifications.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithScrollThreshold sets how close to the bottom, in viewport units, a
// scroll must be to load the next page.
func WithScrollThreshold(units float64) Option {
	return func(c *Controller) { c.threshold = units }
}

// WithLogger sets the logger. The default logs as the feed component.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the feed of one signed-in user. It is safe for concurrent
// use. At most one page fetch is outstanding at any time, and every request
// it issues is cancelled by Close.
type Controller struct {
	api       ExpenseAPI
	auth      AuthContext
	nav       Navigator
	notifier  Notifier
	logger    *log.Logger
	pageSize  int
	threshold float64
	policy    FailurePolicy

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	active  int           // operations in flight
	idle    chan struct{} // closed when active drops to zero
	state   State
	session string // token the current state belongs to
	gen     uint64 // bumped whenever the state is discarded
	// failedToken is the token whose page load ended the session; no page
	// is fetched with it again.
	failedToken string
	loadCancel  context.CancelFunc

	// Mutations confirmed while a page load is in flight.
	touched map[string]core.Expense
	removed map[string]struct{}

	version     uint64
	catsVersion uint64
	cats        []string
}

func NewController(api ExpenseAPI, auth AuthContext, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:       api,
		auth:      auth,
		nav:       discard{},
		notifier:  discard{},
		pageSize:  DefaultPageSize,
		threshold: DefaultScrollThreshold,
		policy:    LogoutOnUnauthorized,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Cursor: 1},
		touched:   map[string]core.Expense{},
		removed:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentFeed)
	}
	c.session = auth.Token()
	return c
}

// State returns a copy of the current feed state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncSessionLocked()
	s := c.state
	s.Items = slices.Clone(c.state.Items)
	return s
}

// PageSize is the number of records requested per page.
func (c *Controller) PageSize() int { return c.pageSize }

type loadRequest struct {
	token string
	page  int
	gen   uint64
	ctx   context.Context
}

// LoadNextPage fetches the page at the cursor and merges it into the feed.
// It returns nil without fetching when signed out, exhausted, or when a
// fetch is already outstanding.
func (c *Controller) LoadNextPage(ctx context.Context) error {
	req, ok, err := c.beginLoad(ctx)
	if !ok {
		return err
	}
	defer c.finish()
	return c.runLoad(req)
}

// OnScroll starts a background page load when v is near the bottom of the
// document. It reports whether a load was started.
func (c *Controller) OnScroll(v Viewport) bool {
	if !v.NearBottom(c.threshold) {
		return false
	}
	req, ok, _ := c.beginLoad(c.ctx)
	if !ok {
		return false
	}
	go func() {
		defer c.finish()
		if err := c.runLoad(req); err != nil {
			c.logger.Debug("Background page load failed", log.FieldPage, req.page, log.FieldError, err)
		}
	}()
	return true
}

// beginLoad checks the preconditions and marks the feed loading. On success
// the caller must call finish once the load returns.
func (c *Controller) beginLoad(parent context.Context) (loadRequest, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return loadRequest{}, false, ErrClosed
	}
	c.syncSessionLocked()
	token := c.session
	if token == "" {
		c.state.Loading = false
		return loadRequest{}, false, nil
	}
	if token == c.failedToken || c.state.Exhausted || c.state.Loading {
		return loadRequest{}, false, nil
	}
	c.state.Loading = true
	ctx, cancel := c.scope(parent)
	c.loadCancel = cancel
	c.startLocked()
	return loadRequest{token: token, page: c.state.Cursor, gen: c.gen, ctx: ctx}, true, nil
}

func (c *Controller) runLoad(req loadRequest) error {
	items, err := c.api.FetchExpenses(req.ctx, req.token, req.page, c.pageSize)
	canceled := req.ctx.Err() != nil

	c.mu.Lock()
	c.loadCancel()
	c.loadCancel = nil
	c.state.Loading = false
	if req.gen != c.gen {
		// the session changed while the page was in flight
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.clearPendingLocked()
		logout := c.shouldLogout(err)
		if logout {
			c.failedToken = req.token
		}
		c.mu.Unlock()
		return c.loadFailed(req, err, logout, canceled)
	}

	c.state.Items = mergePage(c.state.Items, items, c.touched, c.removed)
	c.state.Exhausted = len(items) < c.pageSize
	c.state.Cursor++
	c.clearPendingLocked()
	c.version++
	total, exhausted := len(c.state.Items), c.state.Exhausted
	c.mu.Unlock()

	c.logger.Debug("Page loaded",
		log.FieldPage, req.page,
		log.FieldCount, len(items),
		"total", total,
		"exhausted", exhausted)
	return nil
}

func (c *Controller) shouldLogout(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return c.policy == LogoutOnAnyFailure || errors.Is(err, core.ErrUnauthorized)
}

// loadFailed reports a failed load. canceled is whether the load's context
// ended before the fetch returned; such failures are not surfaced.
func (c *Controller) loadFailed(req loadRequest, err error, logout, canceled bool) error {
	err = fmt.Errorf("load page %d: %w", req.page, err)
	if !logout {
		if !canceled {
			c.logger.Warn("Page load failed", log.FieldPage, req.page, log.FieldError, err)
			c.notifier.Notify(Notification{
				Title:       "Could not load expenses",
				Description: err.Error(),
				Severity:    SeverityError,
			})
		}
		return err
	}
	c.logger.Warn("Page load failed, ending session",
		log.FieldPage, req.page,
		log.FieldPolicy, c.policy.String(),
		log.FieldError, err)
	c.notifier.Notify(Notification{
		Title:       "Session expired",
		Description: "Please sign in again.",
		Severity:    SeverityError,
	})
	c.auth.Logout()
	c.nav.RedirectToLogin()
	return err
}

// AddExpense creates the expense remotely and inserts the confirmed record.
func (c *Controller) AddExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error) {
	op, err := c.beginMutation(ctx, "Could not add expense")
	if err != nil {
		return core.Expense{}, err
	}
	defer op.done()

	e, err := c.api.AddExpense(op.ctx, d, op.token)
	if err != nil {
		return core.Expense{}, c.mutationFailed(op, "Could not add expense", err)
	}
	c.applyUpsert(op, e, false)
	c.notifier.Notify(Notification{Title: "Expense added", Description: e.Description, Severity: SeveritySuccess})
	return e, nil
}

// UpdateExpense saves record remotely and replaces the matching item. A
// record not present in the feed is not inserted.
func (c *Controller) UpdateExpense(ctx context.Context, record core.Expense) (core.Expense, error) {
	op, err := c.beginMutation(ctx, "Could not update expense")
	if err != nil {
		return core.Expense{}, err
	}
	defer op.done()

	e, err := c.api.UpdateExpense(op.ctx, record, op.token)
	if err != nil {
		return core.Expense{}, c.mutationFailed(op, "Could not update expense", err)
	}
	c.applyUpsert(op, e, true)
	c.notifier.Notify(Notification{Title: "Expense updated", Description: e.Description, Severity: SeveritySuccess})
	return e, nil
}

// RemoveExpense deletes id remotely and drops it from the feed. Removing an
// id the feed does not hold leaves the items unchanged.
func (c *Controller) RemoveExpense(ctx context.Context, id string) error {
	op, err := c.beginMutation(ctx, "Could not remove expense")
	if err != nil {
		return err
	}
	defer op.done()

	if err := c.api.DeleteExpense(op.ctx, id, op.token); err != nil {
		return c.mutationFailed(op, "Could not remove expense", err)
	}

	c.mu.Lock()
	if op.gen == c.gen {
		if i := indexOf(c.state.Items, id); i >= 0 {
			c.state.Items = slices.Delete(c.state.Items, i, i+1)
			c.version++
		}
		if c.state.Loading {
			delete(c.touched, id)
			c.removed[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.notifier.Notify(Notification{Title: "Expense removed", Severity: SeveritySuccess})
	return nil
}

// DeriveCategories returns the distinct categories in the feed,
// alphabetically. The result is recomputed only after the items change.
func (c *Controller) DeriveCategories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncSessionLocked()
	if c.cats == nil || c.catsVersion != c.version {
		c.cats = distinctCategories(c.state.Items)
		c.catsVersion = c.version
	}
	return slices.Clone(c.cats)
}

// Wait blocks until no page load or mutation is in flight. Operations
// started while it waits extend the wait.
func (c *Controller) Wait() {
	c.mu.Lock()
	if c.active == 0 {
		c.mu.Unlock()
		return
	}
	idle := c.idle
	c.mu.Unlock()
	<-idle
}

func (c *Controller) startLocked() {
	if c.active == 0 {
		c.idle = make(chan struct{})
	}
	c.active++
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
	if c.active == 0 {
		close(c.idle)
	}
}

// Close cancels all in-flight requests and waits for them to return.
// Further operations fail with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.Wait()
	return nil
}

type mutation struct {
	ctx   context.Context
	token string
	gen   uint64
	done  func()
}

func (c *Controller) beginMutation(parent context.Context, title string) (mutation, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return mutation{}, ErrClosed
	}
	c.syncSessionLocked()
	token, gen := c.session, c.gen
	if token == "" {
		c.mu.Unlock()
		c.notifier.Notify(Notification{Title: title, Description: ErrNoSession.Error(), Severity: SeverityError})
		return mutation{}, ErrNoSession
	}
	c.startLocked()
	c.mu.Unlock()

	ctx, cancel := c.scope(parent)
	return mutation{ctx: ctx, token: token, gen: gen, done: func() {
		cancel()
		c.finish()
	}}, nil
}

func (c *Controller) mutationFailed(op mutation, title string, err error) error {
	c.logger.Warn(title, log.FieldError, err)
	if op.ctx.Err() == nil {
		c.notifier.Notify(Notification{Title: title, Description: err.Error(), Severity: SeverityError})
	}
	return err
}

// applyUpsert applies a confirmed record. With onlyExisting set, a record
// missing from the feed is remembered for an in-flight page but not inserted.
func (c *Controller) applyUpsert(op mutation, e core.Expense, onlyExisting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op.gen != c.gen {
		return
	}
	if c.state.Loading {
		c.touched[e.ID] = e
		delete(c.removed, e.ID)
	}
	if onlyExisting && indexOf(c.state.Items, e.ID) < 0 {
		return
	}
	c.state.Items = upsert(c.state.Items, e)
	sortByDateDesc(c.state.Items)
	c.version++
}

// syncSessionLocked discards the feed when the token changed since the
// state was built. An outstanding fetch is cancelled but keeps the loading
// flag until it returns.
func (c *Controller) syncSessionLocked() {
	token := c.auth.Token()
	if token == c.session {
		return
	}
	c.session = token
	c.gen++
	c.version++
	loading := c.state.Loading
	if loading && c.loadCancel != nil {
		c.loadCancel()
	}
	c.state = State{Cursor: 1, Loading: loading}
	c.clearPendingLocked()
}

func (c *Controller) clearPendingLocked() {
	clear(c.touched)
	clear(c.removed)
}

// scope derives a request context that also ends when the controller closes.
func (c *Controller) scope(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
