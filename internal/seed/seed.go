// Package seed loads a YAML document of users and their expenses into a
// store through the same services the API uses.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"finboard/internal/auth"
	"finboard/internal/core"
	"finboard/internal/log"
)

type (
	Document struct {
		Users []User `yaml:"users"`
	}

	User struct {
		Email    string    `yaml:"email"`
		Password string    `yaml:"password"`
		Expenses []Expense `yaml:"expenses"`
	}

	Expense struct {
		Description string `yaml:"description"`
		Amount      Amount `yaml:"amount"`
		Category    string `yaml:"category"`
		Date        Date   `yaml:"date"`
	}

	// Amount accepts the same decimal forms as the API: 5.75, "5,75".
	Amount core.Money

	// Date is a YYYY-MM-DD scalar.
	Date core.Date
)

func (a *Amount) UnmarshalYAML(n *yaml.Node) error {
	m, err := core.MoneyFromDecimal(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w: %q", n.Line, err, n.Value)
	}
	*a = Amount(m)
	return nil
}

func (d *Date) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := core.ParseDate(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Date(parsed)
	return nil
}

func (e Expense) draft() core.ExpenseDraft {
	return core.ExpenseDraft{
		Description: e.Description,
		Amount:      core.Money(e.Amount),
		Category:    e.Category,
		Date:        core.Date(e.Date),
	}
}

// Parse decodes a seed document and checks every record up front so a bad
// file inserts nothing.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("decode seed document: %w", err)
	}
	for i, u := range doc.Users {
		if u.Email == "" || u.Password == "" {
			return Document{}, fmt.Errorf("user %d: email and password are required", i+1)
		}
		for j, e := range u.Expenses {
			if err := e.draft().Validate(); err != nil {
				return Document{}, fmt.Errorf("user %s expense %d: %w", u.Email, j+1, err)
			}
		}
	}
	return doc, nil
}

func Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

type (
	Accounts interface {
		Register(ctx context.Context, email, password string) (core.User, error)
		Authenticate(ctx context.Context, email, password string) (core.User, error)
	}

	ExpenseCreator interface {
		CreateExpense(ctx context.Context, ownerID string, d core.ExpenseDraft) (core.Expense, error)
	}
)

// Result counts what Apply changed.
type Result struct {
	UsersCreated  int
	UsersReused   int
	ExpensesAdded int
}

// Apply registers each user, or reuses it when the email exists and the
// password matches, then inserts the user's expenses.
func Apply(ctx context.Context, doc Document, accounts Accounts, expenses ExpenseCreator, logger *log.Logger) (Result, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSeed)

	var res Result
	for _, su := range doc.Users {
		u, err := accounts.Register(ctx, su.Email, su.Password)
		switch {
		case err == nil:
			res.UsersCreated++
		case errors.Is(err, core.ErrConflict):
			u, err = accounts.Authenticate(ctx, su.Email, su.Password)
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return res, fmt.Errorf("user %s exists with a different password", su.Email)
			}
			if err != nil {
				return res, fmt.Errorf("authenticate %s: %w", su.Email, err)
			}
			res.UsersReused++
		default:
			return res, fmt.Errorf("register %s: %w", su.Email, err)
		}

		for _, se := range su.Expenses {
			if _, err := expenses.CreateExpense(ctx, u.ID, se.draft()); err != nil {
				return res, fmt.Errorf("seed expense %q for %s: %w", se.Description, su.Email, err)
			}
			res.ExpensesAdded++
		}
		logger.InfoContext(ctx, "Seeded user",
			log.FieldUserID, u.ID,
			"expenses", len(su.Expenses))
	}
	return res, nil
}
