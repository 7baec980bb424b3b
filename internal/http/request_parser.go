// Package http provides the JSON REST API server.
//
// This file holds request decoding: strict JSON bodies with a size cap,
// struct validation, free-text sanitising and query parameter parsing.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"finboard/internal/core"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 64 << 10

var (
	errBadRequest     = errors.New("bad request")
	errBodyTooLarge   = errors.New("request body too large")
	errInvalidRequest = errors.New("invalid request")
)

// requestError carries a client-facing message and the sentinel that
// selects the status code.
type requestError struct {
	kind error
	msg  string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return e.kind }

func badRequest(format string, args ...any) error {
	return &requestError{kind: errBadRequest, msg: fmt.Sprintf(format, args...)}
}

type (
	registerRequest struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}

	loginRequest struct {
		Email    string `json:"email" validate:"required,max=254"`
		Password string `json:"password" validate:"required,max=72"`
	}

	// expenseRequest is the body of create and update calls. Amount and
	// Date validate themselves while decoding.
	expenseRequest struct {
		Description string     `json:"description" validate:"required,max=200"`
		Amount      core.Money `json:"amount"`
		Category    string     `json:"category" validate:"required,max=64"`
		Date        core.Date  `json:"date"`
	}
)

func (r expenseRequest) draft() core.ExpenseDraft {
	return core.ExpenseDraft{
		Description: r.Description,
		Amount:      r.Amount,
		Category:    r.Category,
		Date:        r.Date,
	}
}

// RequestParser decodes and validates request bodies.
type RequestParser struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
}

func NewRequestParser() *RequestParser {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestParser{validate: v, policy: bluemonday.StrictPolicy()}
}

// Decode reads one JSON value into dst, rejecting unknown fields, trailing
// data and bodies above MaxBodyBytes, then validates the result.
func (p *RequestParser) Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return badRequest("content type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("request body must contain a single JSON object")
	}
	return p.Validate(dst)
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &maxErr):
		return &requestError{kind: errBodyTooLarge, msg: fmt.Sprintf("request body must not exceed %d bytes", MaxBodyBytes)}
	case errors.As(err, &syntaxErr):
		return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("malformed JSON")
	case errors.As(err, &typeErr):
		return badRequest("invalid value for field %q", typeErr.Field)
	case errors.Is(err, io.EOF):
		return badRequest("request body must not be empty")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return badRequest("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidDate):
		return &requestError{kind: errInvalidRequest, msg: err.Error()}
	default:
		return badRequest("invalid request body")
	}
}

// Validate runs struct tags and reports every failing field at once.
func (p *RequestParser) Validate(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &requestError{kind: errInvalidRequest, msg: strings.Join(msgs, "; ")}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Sanitize strips markup and control characters from free text.
func (p *RequestParser) Sanitize(s string) string {
	s = html.UnescapeString(p.policy.Sanitize(s))
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// parsePage reads page and pageSize, defaulting to page 1 and def, and
// rejecting sizes above max.
func parsePage(q url.Values, def, max int) (core.Page, error) {
	page := core.Page{Number: 1, Size: def}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return core.Page{}, badRequest("page must be a positive integer")
		}
		page.Number = n
	}
	if v := strings.TrimSpace(q.Get("pageSize")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > max {
			return core.Page{}, badRequest("pageSize must be between 1 and %d", max)
		}
		page.Size = n
	}
	return page, nil
}

// parseYearMonth reads year and month, defaulting to now.
func parseYearMonth(q url.Values, now time.Time) (year, month int, err error) {
	year, month = now.Year(), int(now.Month())
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 || y > 9999 {
			return 0, 0, badRequest("year must be between 1970 and 9999")
		}
		year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, badRequest("month must be between 1 and 12")
		}
		month = m
	}
	return year, month, nil
}
