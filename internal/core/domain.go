package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds expense descriptions, in bytes.
const MaxDescriptionLength = 200

type (
	// Date is a calendar date without time of day, always in UTC.
	Date struct {
		time.Time
	}

	// Expense is a single spending record owned by one user.
	Expense struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Category    string `json:"category"`
		Date        Date   `json:"date"`
		OwnerID     string `json:"-"`
	}

	// ExpenseDraft is what a client submits to create an expense; the
	// server assigns the id and the owner.
	ExpenseDraft struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Category    string `json:"category"`
		Date        Date   `json:"date"`
	}

	User struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Page selects one window of a date-ordered expense listing.
	Page struct {
		Number int // 1-based
		Size   int
	}
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")

	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrLongDescription  = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidPage      = errors.New("invalid page")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps too; only the calendar part is kept.
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Offset returns the number of records preceding this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) Validate() error {
	if p.Number < 1 || p.Size < 1 {
		return fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, p.Number, p.Size)
	}
	return nil
}

func (d ExpenseDraft) Validate() error {
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(d.Description) > MaxDescriptionLength {
		return ErrLongDescription
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Draft returns the client-editable part of the expense.
func (e Expense) Draft() ExpenseDraft {
	return ExpenseDraft{
		Description: e.Description,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
	}
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("missing expense id")
	}
	return e.Draft().Validate()
}

// WithDraft returns a copy of the expense carrying the draft's fields.
func (e Expense) WithDraft(d ExpenseDraft) Expense {
	e.Description = d.Description
	e.Amount = d.Amount
	e.Category = d.Category
	e.Date = d.Date
	return e
}
