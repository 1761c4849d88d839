// Package services orchestrates ledger mutations and the events they emit.
package services

import (
	"context"
	"fmt"

	"householdledger/internal/amqp"
	"householdledger/internal/core"
	"householdledger/internal/ledger"
	"householdledger/internal/log"
)

// Publisher sends ledger events. *amqp.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
	Close() error
}

// LedgerService writes to the shard store first and then publishes an event.
// Publishing is best effort: a failure is logged and the mutation still
// succeeds.
type LedgerService struct {
	store     *ledger.Store
	publisher Publisher
	logger    *log.Logger
}

// NewLedgerService wraps store. A nil publisher disables events.
func NewLedgerService(store *ledger.Store, publisher Publisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Nop()
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

// Create stores tx, assigning a fresh id when tx.ID is zero or taken.
func (s *LedgerService) Create(ctx context.Context, tx core.Transaction) (int64, error) {
	return s.add(ctx, tx, amqp.EventCreated)
}

// AddUnique is Create for generated transactions. It lets the recurrence
// engine write through the service.
func (s *LedgerService) AddUnique(ctx context.Context, tx core.Transaction) (int64, error) {
	return s.add(ctx, tx, amqp.EventGenerated)
}

func (s *LedgerService) add(ctx context.Context, tx core.Transaction, kind amqp.EventKind) (int64, error) {
	id, err := s.store.AddUnique(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("add transaction: %w", err)
	}
	tx.ID = id

	op := log.OpCreate
	if kind == amqp.EventGenerated {
		op = log.OpGenerate
	}
	s.logger.InfoContext(ctx, "Transaction stored",
		log.FieldOperation, op,
		log.FieldTxID, id,
		log.FieldTxDate, tx.Date,
		log.FieldTxType, tx.Type,
		log.FieldCategory, tx.Category,
		log.FieldAmount, tx.Amount)

	s.publish(ctx, kind, tx)
	return id, nil
}

// Update replaces the record with tx.ID. It reports false when no record has
// that id.
func (s *LedgerService) Update(ctx context.Context, tx core.Transaction) (bool, error) {
	ok, err := s.store.Update(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.logger.InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTxID, tx.ID,
		log.FieldTxDate, tx.Date)

	s.publish(ctx, amqp.EventUpdated, tx)
	return true, nil
}

// Delete removes the record with id. It reports false when no record has it.
func (s *LedgerService) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTxID, id)

	s.publish(ctx, amqp.EventDeleted, core.Transaction{ID: id})
	return true, nil
}

func (s *LedgerService) Month(ctx context.Context, year, month int) ([]core.Transaction, error) {
	return s.store.Month(ctx, year, month)
}

func (s *LedgerService) Year(ctx context.Context, year int) ([]core.Transaction, error) {
	return s.store.Year(ctx, year)
}

func (s *LedgerService) All(ctx context.Context) ([]core.Transaction, error) {
	return s.store.All(ctx)
}

func (s *LedgerService) FindDuplicates(ctx context.Context) (map[int64][]ledger.ShardKey, error) {
	return s.store.FindDuplicates(ctx)
}

func (s *LedgerService) publish(ctx context.Context, kind amqp.EventKind, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	event := amqp.NewLedgerEvent(kind, tx)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventKind, kind,
			log.FieldTxID, tx.ID,
			log.FieldError, err)
	}
}

// Close releases the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
