// Package feed maintains the accumulating, date-sorted expense list a client
// shows to a signed-in user. Pages are fetched on demand as the user scrolls;
// local mutations are applied only after the server confirms them.
package feed

import (
	"context"
	"errors"

	"finboard/internal/core"
)

const (
	DefaultPageSize = 10
	// DefaultScrollThreshold is how close to the bottom edge, in viewport
	// units, a scroll must come before the next page is requested.
	DefaultScrollThreshold = 100
)

var (
	ErrClosed    = errors.New("feed closed")
	ErrNoSession = errors.New("not signed in")
)

type (
	// ExpenseAPI is the remote expense service.
	ExpenseAPI interface {
		// FetchExpenses returns page (1-based) of at most pageSize records,
		// newest first. Fewer than pageSize records means the last page.
		FetchExpenses(ctx context.Context, token string, page, pageSize int) ([]core.Expense, error)
		AddExpense(ctx context.Context, draft core.ExpenseDraft, token string) (core.Expense, error)
		UpdateExpense(ctx context.Context, record core.Expense, token string) (core.Expense, error)
		DeleteExpense(ctx context.Context, id, token string) error
	}

	// AuthContext supplies the bearer token; an empty token means signed out.
	AuthContext interface {
		Token() string
		Logout()
	}

	Navigator interface {
		RedirectToLogin()
	}

	Notifier interface {
		Notify(n Notification)
	}
)

// FailurePolicy decides which page-load failures end the session.
type FailurePolicy int

const (
	// LogoutOnUnauthorized logs out only when the API rejects the token.
	// Other failures are reported and the same page is retried on the next
	// load.
	LogoutOnUnauthorized FailurePolicy = iota
	// LogoutOnAnyFailure treats every page-load failure as an expired session.
	LogoutOnAnyFailure
)

func (p FailurePolicy) String() string {
	switch p {
	case LogoutOnUnauthorized:
		return "unauthorized"
	case LogoutOnAnyFailure:
		return "any"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy accepts the names returned by String.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "unauthorized":
		return LogoutOnUnauthorized, nil
	case "any":
		return LogoutOnAnyFailure, nil
	}
	return 0, errors.New("unknown failure policy " + s)
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Notification is a user-visible toast.
type Notification struct {
	Title       string
	Description string
	Severity    Severity
}

// State is a snapshot of the feed.
type State struct {
	Items     []core.Expense
	Cursor    int // next page to fetch, 1-based
	Exhausted bool
	Loading   bool
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() { f() }

type discard struct{}

func (discard) Notify(Notification) {}
func (discard) RedirectToLogin()    {}
