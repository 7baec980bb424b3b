// Package postgres implements the expense and user stores on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"finboard/internal/core"
	"finboard/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PgxIface is the subset of *pgxpool.Pool the store needs.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var (
	_ ports.ExpenseStore    = (*Store)(nil)
	_ ports.UserStore       = (*Store)(nil)
	_ ports.CategoryLister  = (*Store)(nil)
	_ ports.DashboardReader = (*Store)(nil)
	_ ports.Pinger          = (*Store)(nil)
)

type Store struct {
	pool PgxIface
}

func NewStore(pool PgxIface) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool, checks connectivity and applies the schema.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ApplySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func ApplySchema(ctx context.Context, db PgxIface) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, normalizeEmail(u.Email), u.PasswordHash, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("create user %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		normalizeEmail(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, fmt.Errorf("get user %s: %w", email, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

const expenseColumns = `id, owner_id, description, amount_cents, category, date`

func (s *Store) CreateExpense(ctx context.Context, ownerID string, d core.ExpenseDraft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO expenses (id, owner_id, description, amount_cents, category, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+expenseColumns,
		uuid.NewString(), ownerID, d.Description, d.Amount.Cents, d.Category, d.Date.Time)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, ownerID string, page core.Page) ([]core.Expense, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		WHERE owner_id = $1
		ORDER BY date DESC, created_at ASC, id ASC
		LIMIT $2 OFFSET $3`,
		ownerID, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (s *Store) GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = $1 AND id = $2`, ownerID, id)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE expenses
		SET description = $3, amount_cents = $4, category = $5, date = $6, updated_at = clock_timestamp()
		WHERE owner_id = $1 AND id = $2
		RETURNING `+expenseColumns,
		e.OwnerID, e.ID, e.Description, e.Amount.Cents, e.Category, e.Date.Time)
	out, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", e.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteExpense(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT category FROM expenses WHERE owner_id = $1 ORDER BY category`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ReadMonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	ov := core.MonthOverview{Year: year, Month: month, ByCategory: []core.CategoryAmount{}}
	from := core.NewDate(year, month, 1).Time
	rows, err := s.pool.Query(ctx,
		`SELECT category, SUM(amount_cents)::bigint AS total
		FROM expenses
		WHERE owner_id = $1 AND date >= $2 AND date < $3
		GROUP BY category
		ORDER BY total DESC, category`,
		ownerID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return ov, fmt.Errorf("get category sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			cents int64
		)
		if err := rows.Scan(&name, &cents); err != nil {
			return ov, fmt.Errorf("scan category sum: %w", err)
		}
		amount := core.Money{Cents: cents}
		ov.Total = ov.Total.Add(amount)
		ov.ByCategory = append(ov.ByCategory, core.CategoryAmount{Name: name, Amount: amount})
	}
	return ov, rows.Err()
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e    core.Expense
		date time.Time
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Description, &e.Amount.Cents, &e.Category, &date); err != nil {
		return core.Expense{}, err
	}
	e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	return e, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
