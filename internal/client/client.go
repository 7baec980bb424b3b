// Package client is the Go SDK for the finboard REST API. *Client
// satisfies feed.ExpenseAPI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finboard/internal/auth"
	"finboard/internal/core"
	"finboard/internal/services"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// APIError is any non-2xx reply that is neither 401 nor 404.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after 15s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse base url: unsupported scheme %q", u.Scheme)
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", nil, "", credentials{email, password}, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var sess auth.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, "", credentials{email, password}, &sess)
	return sess, err
}

func (c *Client) FetchExpenses(ctx context.Context, token string, page, pageSize int) ([]core.Expense, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	var items []core.Expense
	if err := c.do(ctx, http.MethodGet, "/api/expenses", q, token, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) AddExpense(ctx context.Context, draft core.ExpenseDraft, token string) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodPost, "/api/expenses", nil, token, draft, &out)
	return out, err
}

func (c *Client) UpdateExpense(ctx context.Context, record core.Expense, token string) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodPut, "/api/expenses/"+url.PathEscape(record.ID), nil, token, record.Draft(), &out)
	return out, err
}

func (c *Client) DeleteExpense(ctx context.Context, id, token string) error {
	return c.do(ctx, http.MethodDelete, "/api/expenses/"+url.PathEscape(id), nil, token, nil, nil)
}

func (c *Client) Categories(ctx context.Context, token string) ([]string, error) {
	var cats []string
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, token, nil, &cats)
	return cats, err
}

// Dashboard returns the overview for year and month; zero values select the
// server's current month.
func (c *Client) Dashboard(ctx context.Context, token string, year, month int) (services.Dashboard, error) {
	q := url.Values{}
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	if month > 0 {
		q.Set("month", strconv.Itoa(month))
	}
	var d services.Dashboard
	err := c.do(ctx, http.MethodGet, "/api/dashboard", q, token, nil, &d)
	return d, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, token string, in, out any) error {
	u := c.baseURL.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", core.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, msg)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
