package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"finboard/internal/core"
	"finboard/internal/ports"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is used when GOOGLE_SHEET_NAME is unset.
const DefaultSheetName = "Expenses"

// Header is the first row of a mirror sheet. Column A holds the expense id.
var Header = []any{"id", "date", "description", "amount", "category", "owner"}

// Client mirrors expense records into a single sheet, one row per expense.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	// serialises find-then-write so two upserts of a new id cannot both append
	mu sync.Mutex
}

var _ ports.ExpenseMirror = (*Client)(nil)

// New creates a mirror client. Without options the service account
// credentials are taken from the environment.
func New(ctx context.Context, spreadsheetID, sheet string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheet = DefaultSheetName
	}

	var (
		svc *gsheet.Service
		err error
	)
	if len(opts) == 0 {
		svc, err = newSheetsService(ctx)
	} else {
		svc, err = gsheet.NewService(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// NewFromEnv creates a mirror client from GOOGLE_SPREADSHEET_ID and
// GOOGLE_SHEET_NAME.
func NewFromEnv(ctx context.Context) (*Client, error) {
	id := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	return New(ctx, id, os.Getenv("GOOGLE_SHEET_NAME"))
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully",
		"credentials_size", len(credentialsJSON))
	return service, nil
}

// UpsertExpense rewrites the row holding e.ID, or appends one.
func (c *Client) UpsertExpense(ctx context.Context, e core.Expense) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("missing expense id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}

	if row == 0 {
		rng := fmt.Sprintf("%s!A:F", c.sheet)
		_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append to sheet %s: %w", c.sheet, err)
		}
		slog.InfoContext(ctx, "Appended expense row", "id", e.ID, "sheet", c.sheet)
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:F%d", c.sheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Updated expense row", "id", e.ID, "range", rng)
	return nil
}

// RemoveExpense clears the row holding id. Unknown ids are ignored.
func (c *Client) RemoveExpense(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		slog.InfoContext(ctx, "Expense row not found, nothing to clear", "id", id, "sheet", c.sheet)
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:F%d", c.sheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Cleared expense row", "id", id, "range", rng)
	return nil
}

// EnsureHeader writes Header into row 1 when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rng := fmt.Sprintf("%s!A1:F1", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{Header}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	return nil
}

func (c *Client) findRow(ctx context.Context, id string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	return findRow(resp.Values, id), nil
}

// findRow returns the 1-based sheet row whose first cell equals id, or 0.
func findRow(values [][]any, id string) int {
	id = strings.TrimSpace(id)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

func expenseRow(e core.Expense) []any {
	return []any{e.ID, e.Date.String(), e.Description, e.Amount.String(), e.Category, e.OwnerID}
}
