package memory

import (
	"context"
	"errors"
	"testing"

	"householdledger/internal/core"
)

func TestMemoryStoreAppendAndRows(t *testing.T) {
	s := New()
	written, err := s.AppendTransactions(context.Background(), []core.Transaction{
		{ID: 1, Date: "2024-01-01", Type: core.Expense, Category: "식비", Amount: 100},
		{ID: 2, Date: "2024-01-02", Type: core.Income, Category: "월급", Amount: 200},
	})
	if err != nil || len(written) != 2 {
		t.Fatalf("unexpected append: written=%v err=%v", written, err)
	}

	rows := s.Rows()
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].ID != 2 {
		t.Fatalf("unexpected rows: %v", rows)
	}

	rows[0].ID = 99
	if s.Rows()[0].ID != 1 {
		t.Fatal("Rows should return a copy")
	}
}

func TestMemoryStoreFailWith(t *testing.T) {
	s := New()
	boom := errors.New("quota exceeded")
	s.FailWith(boom)

	if _, err := s.AppendTransactions(context.Background(), []core.Transaction{{ID: 1}}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(s.Rows()) != 0 {
		t.Fatal("failed append must not record rows")
	}

	s.FailWith(nil)
	if written, err := s.AppendTransactions(context.Background(), []core.Transaction{{ID: 1}}); err != nil || len(written) != 1 {
		t.Fatalf("append after clearing error: written=%v err=%v", written, err)
	}
}

func TestMemoryStoreFailWhen(t *testing.T) {
	s := New()
	boom := errors.New("sheet missing")
	s.FailWhen(func(tx core.Transaction) bool { return tx.ID == 2 }, boom)

	written, err := s.AppendTransactions(context.Background(), []core.Transaction{{ID: 1}, {ID: 2}, {ID: 3}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(written) != 2 || written[0] != 0 || written[1] != 2 {
		t.Fatalf("written = %v, want [0 2]", written)
	}
	if len(s.Rows()) != 2 {
		t.Fatalf("expected 2 recorded rows, got %d", len(s.Rows()))
	}
}
