// Package storage keeps an SQLite journal of ledger events and tracks which
// of them have been exported.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"householdledger/internal/core"
	"householdledger/internal/log"

	_ "modernc.org/sqlite"
)

// Entry is one journaled ledger event.
type Entry struct {
	ID          int64
	MessageID   string
	Kind        string
	Transaction core.Transaction
	OccurredAt  time.Time
	RecordedAt  time.Time
	ExportedAt  time.Time // zero until exported
}

// Exportable kinds add a row to the ledger.
var exportableKinds = []string{"created", "generated"}

type Journal struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// NewJournal opens (creating if needed) the journal database at dbPath and
// applies pending migrations.
func NewJournal(dbPath string, logger *log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pool connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := MigrateJournal(dbPath, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Record stores e unless an entry with the same message id exists. It reports
// whether a row was inserted.
func (j *Journal) Record(ctx context.Context, e Entry) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO ledger_events
			(message_id, kind, tx_id, tx_date, tx_type, category, memo, amount, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		e.MessageID, e.Kind,
		e.Transaction.ID, e.Transaction.Date, string(e.Transaction.Type),
		e.Transaction.Category, e.Transaction.Memo, e.Transaction.Amount,
		e.OccurredAt.UnixMilli(), j.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	j.logger.DebugContext(ctx, "Ledger event journaled",
		log.FieldMessageID, e.MessageID,
		log.FieldEventKind, e.Kind,
		log.FieldTxID, e.Transaction.ID,
		"inserted", n > 0)
	return n > 0, nil
}

// PendingExports returns up to limit created or generated entries that have
// not been exported yet, oldest first.
func (j *Journal) PendingExports(ctx context.Context, limit int) ([]Entry, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(exportableKinds)), ",")
	args := make([]any, 0, len(exportableKinds)+1)
	for _, k := range exportableKinds {
		args = append(args, k)
	}
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_events
		WHERE exported_at IS NULL AND kind IN (`+placeholders+`)
		ORDER BY id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending exports: %w", err)
	}
	return scanEntries(rows)
}

// MarkExported stamps the given entries as exported.
func (j *Journal) MarkExported(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	at := j.now().UnixMilli()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE ledger_events SET exported_at = ? WHERE id = ?`, at, id); err != nil {
			return fmt.Errorf("mark event %d exported: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// History returns every entry about txID, oldest first.
func (j *Journal) History(ctx context.Context, txID int64) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_events
		WHERE tx_id = ?
		ORDER BY id`, txID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanEntries(rows)
}

const entryColumns = `id, message_id, kind, tx_id, tx_date, tx_type, category, memo, amount,
	occurred_at, recorded_at, exported_at`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                      Entry
			txType                 string
			exportedAt             sql.NullInt64
			occurredAt, recordedAt int64
		)
		if err := rows.Scan(
			&e.ID, &e.MessageID, &e.Kind,
			&e.Transaction.ID, &e.Transaction.Date, &txType,
			&e.Transaction.Category, &e.Transaction.Memo, &e.Transaction.Amount,
			&occurredAt, &recordedAt, &exportedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		e.Transaction.Type = core.TxType(txType)
		e.OccurredAt = time.UnixMilli(occurredAt)
		e.RecordedAt = time.UnixMilli(recordedAt)
		if exportedAt.Valid {
			e.ExportedAt = time.UnixMilli(exportedAt.Int64)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return out, nil
}
