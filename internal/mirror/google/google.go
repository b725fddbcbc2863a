package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"plata/internal/core"
	ports "plata/internal/mirror"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year (e.g. "Movimientos"); code prefixes year.
	sheetBase string
}

// Ensure interface conformance
var _ ports.RowWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Movimientos"),
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS for auth.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	base := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if base == "" {
		base = "Movimientos"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
	}, nil
}

// newSheetsService initializes a Sheets Service using service account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// Append writes one transaction to the year sheet and returns a row reference.
func (c *Client) Append(ctx context.Context, tx core.Transaction, categoryName string) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearSheetName(c.sheetBase, tx.Date.Year())

	// Find the next empty row from the sheet dimensions.
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheet, err)
	}
	nextRow := len(resp.Values) + 1

	row := []any{
		tx.Date.Format("2006-01-02"),
		string(tx.Type),
		categoryName,
		tx.Description,
		tx.AmountARS.String(),
		tx.AmountUSD.String(),
		tx.ExchangeRate.String(),
		string(tx.PaymentMethod),
		tx.ID.String(),
	}

	dataRange := fmt.Sprintf("%s!A%d:I%d", sheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update row in sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Mirrored transaction to sheet",
		"id", tx.ID,
		"sheet", sheet,
		"row", nextRow)

	return fmt.Sprintf("%s!A%d", sheet, nextRow), nil
}

func yearSheetName(base string, year int) string {
	if year == 0 {
		year = time.Now().Year()
	}
	return fmt.Sprintf("%d %s", year, base)
}
