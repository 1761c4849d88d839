// Package worker consumes ledger events into the journal and exports new rows.
package worker

import (
	"context"
	"fmt"
	"time"

	"householdledger/internal/amqp"
	"householdledger/internal/core"
	"householdledger/internal/log"
	"householdledger/internal/sheets"
	"householdledger/internal/storage"
)

// JournalWorker records every ledger event and appends created and generated
// transactions to a spreadsheet.
type JournalWorker struct {
	journal   *storage.Journal
	exporter  sheets.Exporter
	batchSize int
	logger    *log.Logger
}

// NewJournalWorker builds a worker. A nil exporter disables exporting.
func NewJournalWorker(journal *storage.Journal, exporter sheets.Exporter, batchSize int, logger *log.Logger) *JournalWorker {
	if logger == nil {
		logger = log.Nop()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &JournalWorker{
		journal:   journal,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent journals event. Redelivered events are ignored. An export
// failure is logged and left for the periodic pass; only a journal failure is
// returned so the delivery gets requeued.
func (w *JournalWorker) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	inserted, err := w.journal.Record(ctx, storage.Entry{
		MessageID:   event.MessageID,
		Kind:        string(event.Kind),
		Transaction: event.Transaction,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("journal event: %w", err)
	}
	if !inserted {
		w.logger.DebugContext(ctx, "Duplicate ledger event ignored", log.FieldMessageID, event.MessageID)
		return nil
	}

	if event.Kind == amqp.EventCreated || event.Kind == amqp.EventGenerated {
		if _, err := w.ProcessPending(ctx); err != nil {
			w.logger.WarnContext(ctx, "Export deferred to periodic pass",
				log.FieldMessageID, event.MessageID,
				log.FieldError, err)
		}
	}
	return nil
}

// ProcessPending exports one batch of journal rows that have not been exported
// yet and returns how many were exported.
func (w *JournalWorker) ProcessPending(ctx context.Context) (int, error) {
	if w.exporter == nil {
		return 0, nil
	}

	pending, err := w.journal.PendingExports(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	txs := make([]core.Transaction, len(pending))
	ids := make([]int64, len(pending))
	for i, e := range pending {
		txs[i] = e.Transaction
		ids[i] = e.ID
	}

	written, exportErr := w.exporter.AppendTransactions(ctx, txs)
	exported := make([]int64, 0, len(written))
	for _, i := range written {
		exported = append(exported, ids[i])
	}
	if len(exported) > 0 {
		if err := w.journal.MarkExported(ctx, exported...); err != nil {
			return 0, fmt.Errorf("mark exported: %w", err)
		}
	}
	if exportErr != nil {
		return len(exported), fmt.Errorf("export transactions: %w", exportErr)
	}

	w.logger.InfoContext(ctx, "Exported pending transactions",
		log.FieldOperation, log.OpExport,
		"count", len(exported))
	return len(exported), nil
}

// Run exports pending rows immediately and then every interval until ctx is
// cancelled.
func (w *JournalWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Journal export loop stopped")
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain exports batches until nothing is pending or a batch fails.
func (w *JournalWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldError, err)
			return
		}
		if n < w.batchSize {
			return
		}
	}
}
