// Package google exports ledger rows to Google Sheets.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"householdledger/internal/core"
	"householdledger/internal/log"
	ports "householdledger/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Ledger"); rows go to "<year> <base>".
	sheetBase string
	logger    *log.Logger
}

var _ ports.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with service account credentials
// from the environment.
func New(ctx context.Context, spreadsheetID, sheetBase string, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetBase, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Ledger"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     sheetBase,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
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
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
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

// AppendTransactions appends one row per transaction to the sheet of the
// transaction's year. Rows with an unparseable date go to the undated sheet.
// Each sheet is one append call; on failure the indexes of sheets already
// appended are still returned.
func (c *Client) AppendTransactions(ctx context.Context, txs []core.Transaction) ([]int, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	var written []int
	for _, group := range groupBySheet(txs, c.sheetBase) {
		rows := make([][]any, 0, len(group.txs))
		for _, tx := range group.txs {
			rows = append(rows, transactionRow(tx))
		}

		rng := fmt.Sprintf("%s!A:F", group.sheet)
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return written, fmt.Errorf("append to sheet %s: %w", group.sheet, err)
		}
		written = append(written, group.index...)

		c.logger.InfoContext(ctx, "Exported transactions",
			log.FieldOperation, log.OpExport,
			"sheet", group.sheet,
			"rows", len(rows))
	}
	return written, nil
}

type sheetGroup struct {
	sheet string
	txs   []core.Transaction
	index []int // positions of txs in the input
}

// groupBySheet buckets transactions by target sheet, keeping input order
// within each bucket and ordering buckets by sheet name.
func groupBySheet(txs []core.Transaction, base string) []sheetGroup {
	index := map[string]int{}
	var groups []sheetGroup
	for pos, tx := range txs {
		sheet := sheetFor(tx, base)
		i, ok := index[sheet]
		if !ok {
			i = len(groups)
			index[sheet] = i
			groups = append(groups, sheetGroup{sheet: sheet})
		}
		groups[i].txs = append(groups[i].txs, tx)
		groups[i].index = append(groups[i].index, pos)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].sheet < groups[b].sheet })
	return groups
}

func sheetFor(tx core.Transaction, base string) string {
	d, err := tx.ParsedDate()
	if err != nil {
		return base + " (undated)"
	}
	return yearPrefixedName(base, d.Year())
}

// transactionRow lays out ID, Date, Type, Category, Memo, Amount.
func transactionRow(tx core.Transaction) []any {
	return []any{
		strconv.FormatInt(tx.ID, 10),
		tx.Date,
		string(tx.Type),
		tx.Category,
		tx.Memo,
		tx.Amount,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
