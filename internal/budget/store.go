package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"householdledger/internal/jsonfile"
	"householdledger/internal/log"
)

const budgetFile = "budget.json"

var ErrInvalidYear = errors.New("invalid year")

// Store owns budget.json. One mutex guards every read and write.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

func NewStore(dataDir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{
		path:   filepath.Join(dataDir, budgetFile),
		logger: logger.WithComponent(log.ComponentBudget),
	}
}

func (s *Store) Path() string { return s.path }

// ForYear returns the budget of year. A missing year is an empty snapshot.
func (s *Store) ForYear(ctx context.Context, year int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return Snapshot{}, err
	}
	return all[YearKey(year)].clone(), nil
}

// SetAnnualGoal replaces the annual goals of year.
func (s *Store) SetAnnualGoal(ctx context.Context, year int, goals json.RawMessage) error {
	return s.update(ctx, year, func(snap Snapshot) Snapshot {
		return snap.Merge(Snapshot{AnnualGoals: goals})
	})
}

// SetMonthlyBudget sets a single category limit, leaving the rest of the
// month untouched.
func (s *Store) SetMonthlyBudget(ctx context.Context, year, month int, category string, amount int64) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("invalid month: %d", month)
	}
	return s.update(ctx, year, func(snap Snapshot) Snapshot {
		if snap.Monthly == nil {
			snap.Monthly = map[string]MonthBudget{}
		}
		key := MonthKey(month)
		block := snap.Monthly[key]
		if block.Expenses == nil {
			block.Expenses = map[string]int64{}
		}
		block.Expenses[category] = amount
		snap.Monthly[key] = block
		return snap
	})
}

// Upsert merges update into the stored budget of year.
func (s *Store) Upsert(ctx context.Context, year int, update Snapshot) error {
	return s.update(ctx, year, func(snap Snapshot) Snapshot {
		return snap.Merge(update)
	})
}

func (s *Store) update(ctx context.Context, year int, fn func(Snapshot) Snapshot) error {
	if year <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	key := YearKey(year)
	all[key] = fn(all[key].clone())
	if err := jsonfile.Save(s.path, all); err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget updated", log.FieldYear, year)
	return nil
}

func (s *Store) load() (map[string]Snapshot, error) {
	all := map[string]Snapshot{}
	if _, err := jsonfile.Load(s.path, &all); err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	if all == nil {
		all = map[string]Snapshot{}
	}
	return all, nil
}
