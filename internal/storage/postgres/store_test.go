package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/core"
)

var expenseCols = []string{"id", "owner_id", "description", "amount_cents", "category", "date"}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock)
}

func TestStore_CreateUser(t *testing.T) {
	t.Run("normalises email", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec("INSERT INTO users").
			WithArgs("u1", "ann@example.com", "hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := store.CreateUser(context.Background(), core.User{ID: "u1", Email: " Ann@Example.com", PasswordHash: "hash"})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to conflict", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec("INSERT INTO users").
			WithArgs("u2", "ann@example.com", "hash", pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: uniqueViolation})

		err := store.CreateUser(context.Background(), core.User{ID: "u2", Email: "ann@example.com", PasswordHash: "hash"})
		assert.ErrorIs(t, err, core.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetUserByEmail(t *testing.T) {
	mock, store := newMock(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, email, password_hash, created_at FROM users").
		WithArgs("ann@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("u1", "ann@example.com", "hash", created))
	mock.ExpectQuery("SELECT id, email, password_hash, created_at FROM users").
		WithArgs("bob@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

	u, err := store.GetUserByEmail(context.Background(), "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, created, u.CreatedAt)

	_, err = store.GetUserByEmail(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateExpense(t *testing.T) {
	mock, store := newMock(t)
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO expenses").
		WithArgs(pgxmock.AnyArg(), "u1", "Coffee", int64(575), "Dining Out", day).
		WillReturnRows(pgxmock.NewRows(expenseCols).
			AddRow("e1", "u1", "Coffee", int64(575), "Dining Out", day))

	e, err := store.CreateExpense(context.Background(), "u1", core.ExpenseDraft{
		Description: "Coffee",
		Amount:      core.Money{Cents: 575},
		Category:    "Dining Out",
		Date:        core.NewDate(2025, 1, 6),
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "2025-01-06", e.Date.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateExpenseRejectsInvalidDraft(t *testing.T) {
	mock, store := newMock(t)
	_, err := store.CreateExpense(context.Background(), "u1", core.ExpenseDraft{Description: "x", Category: "c"})
	assert.ErrorIs(t, err, core.ErrInvalidDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListExpenses(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery("SELECT id, owner_id, description, amount_cents, category, date FROM expenses").
		WithArgs("u1", 10, 10).
		WillReturnRows(pgxmock.NewRows(expenseCols).
			AddRow("e2", "u1", "b", int64(200), "Food", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)).
			AddRow("e1", "u1", "a", int64(100), "Rent", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	items, err := store.ListExpenses(context.Background(), "u1", core.Page{Number: 2, Size: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "e2", items[0].ID)
	assert.Equal(t, int64(100), items[1].Amount.Cents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateExpenseNotFound(t *testing.T) {
	mock, store := newMock(t)
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE expenses").
		WithArgs("u1", "missing", "Coffee", int64(575), "Dining Out", day).
		WillReturnRows(pgxmock.NewRows(expenseCols))

	_, err := store.UpdateExpense(context.Background(), core.Expense{
		ID: "missing", OwnerID: "u1", Description: "Coffee",
		Amount: core.Money{Cents: 575}, Category: "Dining Out", Date: core.NewDate(2025, 1, 6),
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteExpense(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectExec("DELETE FROM expenses").
		WithArgs("u1", "e1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM expenses").
		WithArgs("u1", "e1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM expenses").
		WithArgs("u1", "e2").
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, store.DeleteExpense(context.Background(), "u1", "e1"))
	assert.ErrorIs(t, store.DeleteExpense(context.Background(), "u1", "e1"), core.ErrNotFound)
	err := store.DeleteExpense(context.Background(), "u1", "e2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReadMonthOverview(t *testing.T) {
	mock, store := newMock(t)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT category, SUM").
		WithArgs("u1", from, from.AddDate(0, 1, 0)).
		WillReturnRows(pgxmock.NewRows([]string{"category", "total"}).
			AddRow("Rent", int64(90000)).
			AddRow("Food", int64(750)))

	ov, err := store.ReadMonthOverview(context.Background(), "u1", 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(90750), ov.Total.Cents)
	require.Len(t, ov.ByCategory, 2)
	assert.Equal(t, "Rent", ov.ByCategory[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySchema(t *testing.T) {
	mock, _ := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, ApplySchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
