// Package category keeps the user's category list and marks each category as
// consumption or saving.
package category

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"householdledger/internal/budget"
	"householdledger/internal/core"
	"householdledger/internal/jsonfile"
	"householdledger/internal/log"
)

// Other is the fallback for unknown categories. It always exists.
const Other = "기타"

const (
	categoriesFile = "categories.json"
	attributesFile = "category_attributes.json"
)

type Attribute string

const (
	Consumption Attribute = "consumption"
	Saving      Attribute = "saving"
)

var (
	ErrInvalidAttribute = errors.New("invalid attribute")
	ErrCategoryExists   = errors.New("category already exists")
)

// Defaults is the category list of a fresh data directory.
func Defaults() []string {
	return []string{"월급", "식비", "교통", "쇼핑", "주거", Other}
}

func ParseAttribute(s string) (Attribute, error) {
	switch Attribute(s) {
	case Consumption, Saving:
		return Attribute(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAttribute, s)
}

// Store holds categories in memory and mirrors every change to
// categories.json and category_attributes.json.
type Store struct {
	mu         sync.RWMutex
	dir        string
	names      []string
	attributes map[string]Attribute
	logger     *log.Logger
}

// NewStore loads both files from dataDir, reconciles them and writes the
// result back.
func NewStore(dataDir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Store{
		dir:    dataDir,
		logger: logger.WithComponent(log.ComponentCategory),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	existed, err := jsonfile.Load(filepath.Join(s.dir, categoriesFile), &names)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if !existed {
		names = Defaults()
	}
	if !slices.Contains(names, Other) {
		names = append(names, Other)
	}

	raw := map[string]string{}
	if _, err := jsonfile.Load(filepath.Join(s.dir, attributesFile), &raw); err != nil {
		return fmt.Errorf("load category attributes: %w", err)
	}

	s.names = names
	s.attributes = make(map[string]Attribute, len(names))
	for _, name := range names {
		attr, err := ParseAttribute(raw[name])
		if err != nil {
			attr = Consumption
		}
		s.attributes[name] = attr
	}
	return s.save()
}

// Categories returns the categories in insertion order.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.names)
}

// Attributes returns a copy of the attribute of every category.
func (s *Store) Attributes() map[string]Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Attribute, len(s.attributes))
	for k, v := range s.attributes {
		out[k] = v
	}
	return out
}

// Attribute returns the attribute of name. Unknown names are consumption.
func (s *Store) Attribute(name string) Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if attr, ok := s.attributes[name]; ok {
		return attr
	}
	return Consumption
}

func (s *Store) IsValid(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.names, name)
}

// Normalize returns name if it is a known category and Other otherwise.
func (s *Store) Normalize(name string) string {
	if s.IsValid(name) {
		return name
	}
	return Other
}

func (s *Store) IsSaving(name string) bool {
	return s.Attribute(name) == Saving
}

func (s *Store) Add(ctx context.Context, name string, attr Attribute) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", core.ErrInvalidCategory)
	}
	if _, err := ParseAttribute(string(attr)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.names, name) {
		return fmt.Errorf("%w: %q", ErrCategoryExists, name)
	}
	s.names = append(s.names, name)
	s.attributes[name] = attr
	if err := s.save(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Category added", log.FieldCategory, name, "attribute", attr)
	return nil
}

// Remove deletes name. Other cannot be removed.
func (s *Store) Remove(ctx context.Context, name string) error {
	if name == Other {
		return fmt.Errorf("%w: %q", core.ErrProtectedCategory, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.names, name)
	if i < 0 {
		return fmt.Errorf("%w: category %q", core.ErrNotFound, name)
	}
	s.names = slices.Delete(s.names, i, i+1)
	delete(s.attributes, name)
	if err := s.save(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Category removed", log.FieldCategory, name)
	return nil
}

func (s *Store) SetAttribute(ctx context.Context, name string, attr Attribute) error {
	if _, err := ParseAttribute(string(attr)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.names, name) {
		return fmt.Errorf("%w: category %q", core.ErrNotFound, name)
	}
	s.attributes[name] = attr
	if err := s.save(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Category attribute set", log.FieldCategory, name, "attribute", attr)
	return nil
}

// NormalizeTransactions returns a copy of txs with every category normalized.
func (s *Store) NormalizeTransactions(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	for i, tx := range txs {
		tx.Category = s.Normalize(tx.Category)
		out[i] = tx
	}
	return out
}

// NormalizeBudget folds the limits of unknown categories into Other, month by
// month.
func (s *Store) NormalizeBudget(snap budget.Snapshot) budget.Snapshot {
	if len(snap.Monthly) == 0 {
		return snap
	}
	monthly := make(map[string]budget.MonthBudget, len(snap.Monthly))
	for key, month := range snap.Monthly {
		if month.Expenses != nil {
			expenses := make(map[string]int64, len(month.Expenses))
			var other int64
			for category, amount := range month.Expenses {
				if s.IsValid(category) {
					expenses[category] += amount
				} else {
					other += amount
				}
			}
			if other > 0 {
				expenses[Other] += other
			}
			month.Expenses = expenses
		}
		monthly[key] = month
	}
	snap.Monthly = monthly
	return snap
}

// save writes both files. Callers hold the write lock.
func (s *Store) save() error {
	if err := jsonfile.Save(filepath.Join(s.dir, categoriesFile), s.names); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	raw := make(map[string]string, len(s.attributes))
	for name, attr := range s.attributes {
		raw[name] = string(attr)
	}
	if err := jsonfile.Save(filepath.Join(s.dir, attributesFile), raw); err != nil {
		return fmt.Errorf("save category attributes: %w", err)
	}
	return nil
}
