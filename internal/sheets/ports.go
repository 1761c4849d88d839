// Package sheets defines the outbound port for exporting ledger rows to a
// spreadsheet.
package sheets

import (
	"context"

	"householdledger/internal/core"
)

// Exporter appends transactions as spreadsheet rows.
type Exporter interface {
	// AppendTransactions writes one row per transaction. It returns the
	// indexes into txs that were written, also when it fails partway, so the
	// caller can avoid exporting those rows twice.
	AppendTransactions(ctx context.Context, txs []core.Transaction) ([]int, error)
}
