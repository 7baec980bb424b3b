package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finboard/internal/core"
	"finboard/internal/ports"
)

// timestampLayout sorts lexicographically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	_ ports.ExpenseStore    = (*SQLiteRepository)(nil)
	_ ports.UserStore       = (*SQLiteRepository)(nil)
	_ ports.CategoryLister  = (*SQLiteRepository)(nil)
	_ ports.DashboardReader = (*SQLiteRepository)(nil)
	_ ports.Pinger          = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	err := r.queries.CreateUser(ctx, CreateUserParams{
		ID:           u.ID,
		Email:        normalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC().Format(timestampLayout),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row, err := r.queries.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("get user %s: %w", email, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	created, _ := time.Parse(timestampLayout, row.CreatedAt)
	return core.User{ID: row.ID, Email: row.Email, PasswordHash: row.PasswordHash, CreatedAt: created}, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, ownerID string, d core.ExpenseDraft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}
	row, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Description: d.Description,
		AmountCents: d.Amount.Cents,
		Category:    d.Category,
		Date:        d.Date.String(),
		CreatedAt:   r.now().Format(timestampLayout),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", row.ID,
		"amount_cents", row.AmountCents,
		"date", row.Date)

	return toCore(row)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID string, page core.Page) ([]core.Expense, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	rows, err := r.queries.ListExpenses(ctx, ListExpensesParams{
		OwnerID: ownerID,
		Limit:   int64(page.Size),
		Offset:  int64(page.Offset()),
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, ownerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return toCore(row)
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	row, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		OwnerID:     e.OwnerID,
		ID:          e.ID,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Date:        e.Date.String(),
		UpdatedAt:   r.now().Format(timestampLayout),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", e.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return toCore(row)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteExpense(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete expense %s: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]string, error) {
	cats, err := r.queries.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if cats == nil {
		cats = []string{}
	}
	return cats, nil
}

// ReadMonthOverview implements ports.DashboardReader
func (r *SQLiteRepository) ReadMonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	overview := core.MonthOverview{Year: year, Month: month, ByCategory: []core.CategoryAmount{}}

	from := core.NewDate(year, month, 1)
	to := core.Date{Time: from.AddDate(0, 1, 0)}
	sums, err := r.queries.GetCategorySums(ctx, GetCategorySumsParams{
		OwnerID: ownerID,
		From:    from.String(),
		To:      to.String(),
	})
	if err != nil {
		return overview, fmt.Errorf("get category sums: %w", err)
	}

	for _, cs := range sums {
		amount := core.Money{Cents: cs.TotalAmount}
		overview.Total = overview.Total.Add(amount)
		overview.ByCategory = append(overview.ByCategory, core.CategoryAmount{Name: cs.Category, Amount: amount})
	}
	return overview, nil
}

func toCore(row Expense) (core.Expense, error) {
	d, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", row.ID, err)
	}
	return core.Expense{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Description: row.Description,
		Amount:      core.Money{Cents: row.AmountCents},
		Category:    row.Category,
		Date:        d,
	}, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
