package recurrence

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"householdledger/internal/core"
)

type fakeLedger struct {
	mu     sync.Mutex
	nextID int64
	added  []core.Transaction
	failAt int // 1-based call that fails; 0 never fails
	calls  int
}

func (f *fakeLedger) AddUnique(ctx context.Context, tx core.Transaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return 0, errors.New("disk full")
	}
	f.nextID++
	tx.ID = f.nextID
	f.added = append(f.added, tx)
	return tx.ID, nil
}

func (f *fakeLedger) dates() []string {
	out := make([]string, 0, len(f.added))
	for _, tx := range f.added {
		out = append(out, tx.Date)
	}
	return out
}

func newEngine(t *testing.T, ledger *fakeLedger, items ...core.ScheduleItem) *Engine {
	t.Helper()
	store := NewScheduleStore(t.TempDir())
	for _, item := range items {
		_, err := store.Add(context.Background(), item)
		require.NoError(t, err)
	}
	return NewEngine(store, ledger, nil)
}

func monthly(id int64, name string, typ core.ScheduleType, dayOfMonth int, start string) core.ScheduleItem {
	return core.ScheduleItem{
		ID:        id,
		Name:      name,
		Type:      typ,
		Amount:    50000,
		Category:  "주거",
		Frequency: core.MonthlyDate,
		Day:       dayOfMonth,
		StartDate: core.Date{Time: day(start)},
	}
}

func TestEngine_CatchUpGeneratesEveryMissedMonth(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	e := newEngine(t, ledger, monthly(1, "rent", core.ScheduleExpense, 5, "2024-01-05"))

	res, err := e.GenerateDueTransactions(ctx, day("2024-04-10"))
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-05", "2024-02-05", "2024-03-05", "2024-04-05"}, ledger.dates())
	assert.Len(t, res.Generated, 4)
	assert.Equal(t, 1, res.SchedulesUpdated)
	for _, tx := range ledger.added {
		assert.Equal(t, core.Expense, tx.Type)
		assert.Equal(t, "rent", tx.Memo)
		assert.Equal(t, "주거", tx.Category)
		assert.Equal(t, int64(50000), tx.Amount)
	}

	items, err := e.Schedules().List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2024-04-05", items[0].LastGenerated.String())

	// A second pass on the same day owes nothing.
	res, err = e.GenerateDueTransactions(ctx, day("2024-04-10"))
	require.NoError(t, err)
	assert.Empty(t, res.Generated)
	assert.Len(t, ledger.added, 4)
}

func TestEngine_MapsScheduleTypes(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	e := newEngine(t, ledger,
		monthly(1, "salary", core.ScheduleIncome, 25, "2024-01-25"),
		monthly(2, "to savings", core.ScheduleTransfer, 26, "2024-01-26"),
		monthly(3, "phone", core.ScheduleExpense, 27, "2024-01-27"),
	)

	_, err := e.GenerateDueTransactions(ctx, day("2024-01-31"))
	require.NoError(t, err)

	require.Len(t, ledger.added, 3)
	assert.Equal(t, core.Income, ledger.added[0].Type)
	assert.Equal(t, core.Transfer, ledger.added[1].Type)
	assert.Equal(t, core.Expense, ledger.added[2].Type)
}

func TestEngine_StopsAtEndDate(t *testing.T) {
	ctx := context.Background()
	item := monthly(1, "gym", core.ScheduleExpense, 10, "2024-01-10")
	item.EndDate = core.Date{Time: day("2024-02-20")}
	ledger := &fakeLedger{}
	e := newEngine(t, ledger, item)

	_, err := e.GenerateDueTransactions(ctx, day("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-10", "2024-02-10"}, ledger.dates())
}

func TestEngine_ClampsShortMonths(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	e := newEngine(t, ledger, monthly(1, "card", core.ScheduleExpense, 31, "2024-01-31"))

	_, err := e.GenerateDueTransactions(ctx, day("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, ledger.dates())
}

func TestEngine_SkipsOtherFrequencies(t *testing.T) {
	ctx := context.Background()
	item := monthly(1, "weekly", core.ScheduleExpense, 1, "2024-01-01")
	item.Frequency = "WEEKLY"
	ledger := &fakeLedger{}
	e := newEngine(t, ledger, item)

	before, err := os.ReadFile(e.Schedules().Path())
	require.NoError(t, err)

	res, err := e.GenerateDueTransactions(ctx, day("2024-06-01"))
	require.NoError(t, err)
	assert.Empty(t, res.Generated)
	assert.Empty(t, ledger.added)

	after, err := os.ReadFile(e.Schedules().Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "unchanged schedules are not rewritten")
}

func TestEngine_RegisteredStepperIsUsed(t *testing.T) {
	ctx := context.Background()
	item := monthly(1, "quarterly", core.ScheduleExpense, 1, "2024-01-01")
	item.Frequency = "QUARTERLY"
	ledger := &fakeLedger{}
	e := newEngine(t, ledger, item)
	e.RegisterStepper("QUARTERLY", quarterly{})

	_, err := e.GenerateDueTransactions(ctx, day("2024-12-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-04-01", "2024-07-01", "2024-10-01"}, ledger.dates())
}

type quarterly struct{ MonthlyDateStepper }

func (quarterly) Next(item core.ScheduleItem, from time.Time) time.Time {
	return AddMonths(from, 3, item.Day)
}

func TestEngine_SavesProgressWhenLedgerFails(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{failAt: 3}
	e := newEngine(t, ledger, monthly(1, "rent", core.ScheduleExpense, 5, "2024-01-05"))

	res, err := e.GenerateDueTransactions(ctx, day("2024-04-10"))
	require.Error(t, err)
	assert.Len(t, res.Generated, 2)

	items, err := e.Schedules().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", items[0].LastGenerated.String())

	// The next pass resumes where the ledger stopped accepting.
	_, err = e.GenerateDueTransactions(ctx, day("2024-04-10"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-05", "2024-02-05", "2024-03-05", "2024-04-05"}, ledger.dates())
}

func TestEngine_FutureStartGeneratesNothing(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	e := newEngine(t, ledger, monthly(1, "later", core.ScheduleExpense, 1, "2025-01-01"))

	res, err := e.GenerateDueTransactions(ctx, day("2024-12-31"))
	require.NoError(t, err)
	assert.Empty(t, res.Generated)
	assert.Zero(t, res.SchedulesUpdated)
}

func TestEngine_MalformedScheduleIsSkippedNotFatal(t *testing.T) {
	ctx := context.Background()
	store := NewScheduleStore(t.TempDir())
	raw := `[
  {"id":1,"name":"broken","type":"EXPENSE","amount":1,"category":"주거","frequency":"MONTHLY_DATE","day":5,"startDate":"2024-1-5","endDate":"","lastGenerated":""},
  {"id":2,"name":"rent","type":"EXPENSE","amount":500000,"category":"주거","frequency":"MONTHLY_DATE","day":5,"startDate":"2024-01-05","endDate":"","lastGenerated":""}
]`
	require.NoError(t, os.WriteFile(store.Path(), []byte(raw), 0o644))

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	_, ok := NextDueDate(items[0])
	assert.False(t, ok)

	ledger := &fakeLedger{}
	res, err := NewEngine(store, ledger, nil).GenerateDueTransactions(ctx, day("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-05", "2024-02-05", "2024-03-05"}, ledger.dates())
	assert.Equal(t, 1, res.SchedulesUpdated)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"startDate": "2024-1-5"`, "the malformed value is kept as written")

	items, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", items[1].LastGenerated.String())
	assert.True(t, items[0].LastGenerated.IsEmpty())
}
