package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finboard/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "finboard.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return repo
}

func mustUser(t *testing.T, repo *SQLiteRepository, id, email string) {
	t.Helper()
	if err := repo.CreateUser(context.Background(), core.User{ID: id, Email: email, PasswordHash: "hash"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finboard.db")
	first, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first != 1 {
		t.Fatalf("schema version = %d, want 1", first)
	}
	again, err := RunMigrations(path)
	if err != nil || again != first {
		t.Fatalf("second run: version=%d err=%v", again, err)
	}
}

func TestSQLiteUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mustUser(t, repo, "u1", "Ann@Example.com")

	if err := repo.CreateUser(ctx, core.User{ID: "u2", Email: "ann@example.com", PasswordHash: "x"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	u, err := repo.GetUserByEmail(ctx, "ANN@example.com")
	if err != nil || u.ID != "u1" || u.Email != "ann@example.com" {
		t.Fatalf("unexpected user %+v err=%v", u, err)
	}
	if _, err := repo.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteExpenseLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mustUser(t, repo, "u1", "ann@example.com")
	mustUser(t, repo, "u2", "bob@example.com")

	drafts := []core.ExpenseDraft{
		{Description: "old", Amount: core.Money{Cents: 100}, Category: "Food", Date: core.NewDate(2025, 1, 1)},
		{Description: "first", Amount: core.Money{Cents: 200}, Category: "Rent", Date: core.NewDate(2025, 1, 5)},
		{Description: "second", Amount: core.Money{Cents: 300}, Category: "Food", Date: core.NewDate(2025, 1, 5)},
		{Description: "feb", Amount: core.Money{Cents: 400}, Category: "Travel", Date: core.NewDate(2025, 2, 1)},
	}
	var created []core.Expense
	for _, d := range drafts {
		e, err := repo.CreateExpense(ctx, "u1", d)
		if err != nil {
			t.Fatalf("create expense: %v", err)
		}
		if e.ID == "" || e.OwnerID != "u1" {
			t.Fatalf("unexpected created expense %+v", e)
		}
		created = append(created, e)
	}

	page1, err := repo.ListExpenses(ctx, "u1", core.Page{Number: 1, Size: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"feb", "first", "second"}
	for i, w := range want {
		if page1[i].Description != w {
			t.Fatalf("page1[%d] = %s, want %s", i, page1[i].Description, w)
		}
	}
	page2, err := repo.ListExpenses(ctx, "u1", core.Page{Number: 2, Size: 3})
	if err != nil || len(page2) != 1 || page2[0].Description != "old" {
		t.Fatalf("unexpected page2 %+v err=%v", page2, err)
	}
	other, err := repo.ListExpenses(ctx, "u2", core.Page{Number: 1, Size: 3})
	if err != nil || len(other) != 0 {
		t.Fatalf("owner isolation broken: %+v err=%v", other, err)
	}

	upd := created[0]
	upd.Description = "older"
	upd.Amount = core.Money{Cents: 150}
	got, err := repo.UpdateExpense(ctx, upd)
	if err != nil || got.Description != "older" || got.Amount.Cents != 150 {
		t.Fatalf("update: %+v err=%v", got, err)
	}
	upd.OwnerID = "u2"
	if _, err := repo.UpdateExpense(ctx, upd); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating foreign expense, got %v", err)
	}

	if err := repo.DeleteExpense(ctx, "u2", created[1].ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting foreign expense, got %v", err)
	}
	if err := repo.DeleteExpense(ctx, "u1", created[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetExpense(ctx, "u1", created[1].ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteCategoriesAndOverview(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mustUser(t, repo, "u1", "ann@example.com")

	for _, d := range []core.ExpenseDraft{
		{Description: "a", Amount: core.Money{Cents: 500}, Category: "Food", Date: core.NewDate(2025, 1, 2)},
		{Description: "b", Amount: core.Money{Cents: 90000}, Category: "Rent", Date: core.NewDate(2025, 1, 31)},
		{Description: "c", Amount: core.Money{Cents: 250}, Category: "Food", Date: core.NewDate(2025, 1, 3)},
		{Description: "d", Amount: core.Money{Cents: 999}, Category: "Travel", Date: core.NewDate(2025, 2, 1)},
	} {
		if _, err := repo.CreateExpense(ctx, "u1", d); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	cats, err := repo.ListCategories(ctx, "u1")
	if err != nil || len(cats) != 3 || cats[0] != "Food" || cats[1] != "Rent" || cats[2] != "Travel" {
		t.Fatalf("unexpected categories %v err=%v", cats, err)
	}

	ov, err := repo.ReadMonthOverview(ctx, "u1", 2025, 1)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Total.Cents != 90750 || len(ov.ByCategory) != 2 || ov.ByCategory[0].Name != "Rent" || ov.ByCategory[1].Amount.Cents != 750 {
		t.Fatalf("unexpected overview %+v", ov)
	}

	empty, err := repo.ReadMonthOverview(ctx, "u1", 2024, 12)
	if err != nil || empty.Total.Cents != 0 || len(empty.ByCategory) != 0 {
		t.Fatalf("unexpected empty overview %+v err=%v", empty, err)
	}
}
