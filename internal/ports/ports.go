package ports

import (
	"context"

	"finboard/internal/core"
)

// Ports for outbound adapters. Every expense operation is scoped to the
// owning user; stores return core.ErrNotFound for ids the owner cannot see.
type (
	ExpenseStore interface {
		// CreateExpense stores the draft under ownerID and returns the record
		// with its server-assigned id.
		CreateExpense(ctx context.Context, ownerID string, d core.ExpenseDraft) (core.Expense, error)
		// ListExpenses returns one page ordered newest first.
		ListExpenses(ctx context.Context, ownerID string, page core.Page) ([]core.Expense, error)
		GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, ownerID, id string) error
	}

	UserStore interface {
		// CreateUser returns core.ErrConflict when the email is taken.
		CreateUser(ctx context.Context, u core.User) error
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
	}

	// CategoryLister returns the distinct categories an owner has used.
	CategoryLister interface {
		ListCategories(ctx context.Context, ownerID string) ([]string, error)
	}

	// DashboardReader provides aggregated monthly data.
	DashboardReader interface {
		// ReadMonthOverview returns totals for a specific year and month.
		ReadMonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error)
	}

	// ExpenseMirror keeps an external copy of expense records.
	ExpenseMirror interface {
		UpsertExpense(ctx context.Context, e core.Expense) error
		RemoveExpense(ctx context.Context, id string) error
	}

	// Pinger reports whether a backend is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
