package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    string
}

type Expense struct {
	ID          string
	OwnerID     string
	Description string
	AmountCents int64
	Category    string
	Date        string
	CreatedAt   string
	UpdatedAt   string
}

const createUser = `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`

type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser, arg.ID, arg.Email, arg.PasswordHash, arg.CreatedAt)
	return err
}

const getUserByEmail = `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const createExpense = `INSERT INTO expenses (id, owner_id, description, amount_cents, category, date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, owner_id, description, amount_cents, category, date, created_at, updated_at`

type CreateExpenseParams struct {
	ID          string
	OwnerID     string
	Description string
	AmountCents int64
	Category    string
	Date        string
	CreatedAt   string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.ID, arg.OwnerID, arg.Description, arg.AmountCents, arg.Category, arg.Date, arg.CreatedAt, arg.CreatedAt)
	return scanExpense(row)
}

const listExpenses = `SELECT id, owner_id, description, amount_cents, category, date, created_at, updated_at
FROM expenses
WHERE owner_id = ?
ORDER BY date DESC, created_at ASC, id ASC
LIMIT ? OFFSET ?`

type ListExpensesParams struct {
	OwnerID string
	Limit   int64
	Offset  int64
}

func (q *Queries) ListExpenses(ctx context.Context, arg ListExpensesParams) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses, arg.OwnerID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		i, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getExpense = `SELECT id, owner_id, description, amount_cents, category, date, created_at, updated_at
FROM expenses WHERE owner_id = ? AND id = ?`

func (q *Queries) GetExpense(ctx context.Context, ownerID, id string) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, ownerID, id))
}

const updateExpense = `UPDATE expenses
SET description = ?, amount_cents = ?, category = ?, date = ?, updated_at = ?
WHERE owner_id = ? AND id = ?
RETURNING id, owner_id, description, amount_cents, category, date, created_at, updated_at`

type UpdateExpenseParams struct {
	OwnerID     string
	ID          string
	Description string
	AmountCents int64
	Category    string
	Date        string
	UpdatedAt   string
}

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, updateExpense,
		arg.Description, arg.AmountCents, arg.Category, arg.Date, arg.UpdatedAt, arg.OwnerID, arg.ID)
	return scanExpense(row)
}

const deleteExpense = `DELETE FROM expenses WHERE owner_id = ? AND id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, ownerID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, ownerID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategories = `SELECT DISTINCT category FROM expenses WHERE owner_id = ? ORDER BY category`

func (q *Queries) ListCategories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const getCategorySums = `SELECT category, CAST(SUM(amount_cents) AS INTEGER) AS total_amount
FROM expenses
WHERE owner_id = ? AND date >= ? AND date < ?
GROUP BY category
ORDER BY total_amount DESC, category`

type GetCategorySumsParams struct {
	OwnerID string
	From    string
	To      string
}

type GetCategorySumsRow struct {
	Category    string
	TotalAmount int64
}

func (q *Queries) GetCategorySums(ctx context.Context, arg GetCategorySumsParams) ([]GetCategorySumsRow, error) {
	rows, err := q.db.QueryContext(ctx, getCategorySums, arg.OwnerID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetCategorySumsRow
	for rows.Next() {
		var i GetCategorySumsRow
		if err := rows.Scan(&i.Category, &i.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (Expense, error) {
	var e Expense
	err := s.Scan(&e.ID, &e.OwnerID, &e.Description, &e.AmountCents, &e.Category, &e.Date, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
