package scoring

import (
	"context"
	"fmt"

	"householdledger/internal/budget"
	"householdledger/internal/core"
	"householdledger/internal/log"
)

// TransactionSource reads ledger periods.
type TransactionSource interface {
	Month(ctx context.Context, year, month int) ([]core.Transaction, error)
	Year(ctx context.Context, year int) ([]core.Transaction, error)
}

// BudgetSource reads yearly budgets.
type BudgetSource interface {
	ForYear(ctx context.Context, year int) (budget.Snapshot, error)
}

// Service loads a period and its budget and scores it.
type Service struct {
	ledger     TransactionSource
	budgets    BudgetSource
	categories CategoryResolver
	logger     *log.Logger
}

func NewService(ledger TransactionSource, budgets BudgetSource, categories CategoryResolver, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		ledger:     ledger,
		budgets:    budgets,
		categories: categories,
		logger:     logger.WithComponent(log.ComponentScoring),
	}
}

func (s *Service) ScoreMonth(ctx context.Context, year, month int) (Score, error) {
	if month < 1 || month > 12 {
		return Score{}, fmt.Errorf("invalid month: %d", month)
	}
	txs, err := s.ledger.Month(ctx, year, month)
	if err != nil {
		return Score{}, fmt.Errorf("load transactions: %w", err)
	}
	return s.score(ctx, txs, MonthScope(year, month))
}

func (s *Service) ScoreYear(ctx context.Context, year int) (Score, error) {
	txs, err := s.ledger.Year(ctx, year)
	if err != nil {
		return Score{}, fmt.Errorf("load transactions: %w", err)
	}
	return s.score(ctx, txs, YearScope(year))
}

func (s *Service) score(ctx context.Context, txs []core.Transaction, scope Scope) (Score, error) {
	snap, err := s.budgets.ForYear(ctx, scope.Year)
	if err != nil {
		return Score{}, fmt.Errorf("load budget: %w", err)
	}
	score := Compute(txs, snap, scope, s.categories)
	s.logger.DebugContext(ctx, "Scored period",
		log.FieldOperation, log.OpScore,
		log.FieldYear, scope.Year,
		log.FieldMonth, scope.Month,
		"level", score.Level,
		"party_hp", score.PartyHP)
	return score, nil
}
