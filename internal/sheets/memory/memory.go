// Package memory is an in-process sheets.Exporter for tests.
package memory

import (
	"context"
	"sync"

	"householdledger/internal/core"
	ports "householdledger/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	rows   []core.Transaction
	err    error
	reject func(core.Transaction) bool
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransactions records txs, or fails with the error set by FailWith.
// With FailWhen, the matching rows are left out and the rest are recorded.
func (s *Store) AppendTransactions(_ context.Context, txs []core.Transaction) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && s.reject == nil {
		return nil, s.err
	}
	var written []int
	for i, tx := range txs {
		if s.reject != nil && s.reject(tx) {
			continue
		}
		s.rows = append(s.rows, tx)
		written = append(written, i)
	}
	if len(written) < len(txs) {
		return written, s.err
	}
	return written, nil
}

// FailWith makes subsequent appends fail with err. A nil err clears it.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.reject = nil
}

// FailWhen makes subsequent appends fail with err for the rows matching
// reject, as a multi-sheet append that fails halfway does.
func (s *Store) FailWhen(reject func(core.Transaction) bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.reject = reject
}

// Rows returns a copy of every exported transaction in append order.
func (s *Store) Rows() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.rows...)
}
