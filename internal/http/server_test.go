package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"householdledger/internal/budget"
	"householdledger/internal/category"
	"householdledger/internal/core"
	"householdledger/internal/ledger"
	"householdledger/internal/recurrence"
	"householdledger/internal/scoring"
	"householdledger/internal/services"
)

type testServer struct {
	*Server
	ledger *services.LedgerService
	dir    string
}

func newTestServer(t *testing.T, ready func(context.Context) error) *testServer {
	t.Helper()
	dir := t.TempDir()

	svc := services.NewLedgerService(ledger.NewStore(dir), nil, nil)
	categories, err := category.NewStore(dir, nil)
	require.NoError(t, err)
	budgets := budget.NewStore(dir, nil)
	engine := recurrence.NewEngine(recurrence.NewScheduleStore(dir), svc, nil)

	static := filepath.Join(dir, "www")
	require.NoError(t, os.MkdirAll(static, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>ledger</h1>"), 0o644))

	srv := NewServer(Config{
		Addr:               ":0",
		Static:             os.DirFS(static),
		RateLimitPerMinute: 1000,
		Ready:              ready,
		Now:                func() time.Time { return time.Date(2024, 4, 10, 12, 0, 0, 0, time.Local) },
	}, Deps{
		Ledger:     svc,
		Categories: categories,
		Budgets:    budgets,
		Engine:     engine,
		Scoring:    scoring.NewService(svc, budgets, categories, nil),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, ledger: svc, dir: dir}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestTransactions_CreateListUpdateDelete(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/api/transactions", core.Transaction{
		Date: "2024-03-15", Type: core.Expense, Category: "mystery", Memo: "lunch", Amount: 12000,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[statusResponse](t, rr)
	assert.Equal(t, "ok", created.Status)
	assert.NotZero(t, created.ID)

	rr = ts.do(t, http.MethodGet, "/api/transactions?year=2024&month=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	txs := decode[[]core.Transaction](t, rr)
	require.Len(t, txs, 1)
	assert.Equal(t, created.ID, txs[0].ID)
	assert.Equal(t, category.Other, txs[0].Category)

	// Moving the record to another month changes which shard it is listed in.
	rr = ts.do(t, http.MethodPut, "/api/transactions", core.Transaction{
		ID: created.ID, Date: "2024-05-01", Type: core.Expense, Category: "식비", Memo: "lunch", Amount: 13000,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodGet, "/api/transactions?year=2024&month=3", nil)
	assert.Empty(t, decode[[]core.Transaction](t, rr))
	rr = ts.do(t, http.MethodGet, "/api/transactions?year=2024", nil)
	txs = decode[[]core.Transaction](t, rr)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-05-01", txs[0].Date)

	rr = ts.do(t, http.MethodDelete, "/api/transactions?id="+jsonNumber(created.ID), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(t, http.MethodDelete, "/api/transactions?id="+jsonNumber(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestTransactions_DefaultsToCurrentMonth(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, date := range []string{"2024-04-02", "2024-03-30"} {
		_, err := ts.ledger.Create(context.Background(), core.Transaction{Date: date, Type: core.Income, Category: "월급", Amount: 1})
		require.NoError(t, err)
	}

	rr := ts.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	txs := decode[[]core.Transaction](t, rr)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-04-02", txs[0].Date)
}

func TestTransactions_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"invalid month", http.MethodGet, "/api/transactions?year=2024&month=13", nil, http.StatusBadRequest},
		{"invalid year", http.MethodGet, "/api/transactions?year=abc", nil, http.StatusBadRequest},
		{"invalid type", http.MethodPost, "/api/transactions", map[string]any{"date": "2024-01-01", "type": "bogus", "amount": 1}, http.StatusBadRequest},
		{"invalid date", http.MethodPost, "/api/transactions", map[string]any{"date": "01/01/2024", "type": "expense", "amount": 1}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/api/transactions", map[string]any{"date": "2024-01-01", "type": "expense", "amount": -5}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/transactions", "not an object", http.StatusBadRequest},
		{"update unknown", http.MethodPut, "/api/transactions", core.Transaction{ID: 99, Date: "2024-01-01", Type: core.Expense}, http.StatusNotFound},
		{"delete missing id", http.MethodDelete, "/api/transactions", nil, http.StatusBadRequest},
		{"delete invalid id", http.MethodDelete, "/api/transactions?id=x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			assert.Contains(t, decode[map[string]string](t, rr), "error")
		})
	}
}

func TestTransactions_Duplicates(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodGet, "/api/transactions/duplicates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]duplicateID](t, rr))

	resolver := ledger.NewResolver(ts.dir)
	for _, date := range []string{"2024-01-01", "2024-02-01"} {
		path := resolver.Path(ledger.Resolve(date))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		data, err := json.Marshal([]core.Transaction{{ID: 7, Date: date, Type: core.Expense}})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}

	rr = ts.do(t, http.MethodGet, "/api/transactions/duplicates", nil)
	dups := decode[[]duplicateID](t, rr)
	require.Len(t, dups, 1)
	assert.Equal(t, int64(7), dups[0].ID)
	assert.ElementsMatch(t, []string{"2024-01", "2024-02"}, dups[0].Shards)

	// A duplicated id is never rewritten.
	rr = ts.do(t, http.MethodDelete, "/api/transactions?id=7", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/api/categories", categoryRequest{Name: "여행", Attribute: "saving"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodGet, "/api/categories", nil)
	assert.Contains(t, decode[[]string](t, rr), "여행")

	rr = ts.do(t, http.MethodGet, "/api/category-attributes", nil)
	assert.Equal(t, "saving", decode[map[string]string](t, rr)["여행"])

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"duplicate", http.MethodPost, "/api/categories", categoryRequest{Name: "여행"}, http.StatusConflict},
		{"empty name", http.MethodPost, "/api/categories", categoryRequest{}, http.StatusConflict},
		{"bad attribute", http.MethodPost, "/api/categories", categoryRequest{Name: "x", Attribute: "hoard"}, http.StatusBadRequest},
		{"remove protected", http.MethodDelete, "/api/categories?name=" + category.Other, nil, http.StatusConflict},
		{"remove unknown", http.MethodDelete, "/api/categories?name=nope", nil, http.StatusConflict},
		{"remove missing name", http.MethodDelete, "/api/categories", nil, http.StatusBadRequest},
		{"attribute unknown category", http.MethodPost, "/api/category-attributes", categoryRequest{Name: "nope", Attribute: "saving"}, http.StatusNotFound},
		{"attribute missing name", http.MethodPost, "/api/category-attributes", categoryRequest{Attribute: "saving"}, http.StatusBadRequest},
		{"attribute invalid", http.MethodPost, "/api/category-attributes", categoryRequest{Name: "여행", Attribute: ""}, http.StatusBadRequest},
		{"attribute set", http.MethodPost, "/api/category-attributes", categoryRequest{Name: "여행", Attribute: "consumption"}, http.StatusOK},
		{"remove", http.MethodDelete, "/api/categories?name=%EC%97%AC%ED%96%89", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestBudget(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/budget", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/budget?year=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/budget", map[string]any{"year": 0}).Code)

	rr := ts.do(t, http.MethodPost, "/api/budget", map[string]any{
		"year": 2024,
		"monthly": map[string]any{
			"03": map[string]any{"expenses": map[string]int64{"식비": 300000, "mystery": 5000}},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodGet, "/api/budget?year=2024", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decode[budget.Snapshot](t, rr)
	month := snap.Month(3)
	assert.Equal(t, int64(300000), month.Expenses["식비"])
	assert.Equal(t, int64(5000), month.Expenses[category.Other])
	assert.NotContains(t, month.Expenses, "mystery")

	rr = ts.do(t, http.MethodGet, "/api/budget?year=2023", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[budget.Snapshot](t, rr).IsEmpty())
}

func TestScore(t *testing.T) {
	ts := newTestServer(t, nil)
	_, err := ts.ledger.Create(context.Background(), core.Transaction{Date: "2024-03-01", Type: core.Income, Category: "월급", Amount: 3000000})
	require.NoError(t, err)

	rr := ts.do(t, http.MethodGet, "/api/rpg?year=2024&month=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	score := decode[scoring.Score](t, rr)
	assert.Equal(t, 2024, score.Year)
	assert.Equal(t, 3, score.Month)
	assert.Equal(t, int64(3000000), score.Income)

	rr = ts.do(t, http.MethodGet, "/api/rpg?year=2024", nil)
	score = decode[scoring.Score](t, rr)
	assert.Equal(t, 0, score.Month)
	assert.Equal(t, int64(3000000), score.Income)

	rr = ts.do(t, http.MethodGet, "/api/rpg", nil)
	score = decode[scoring.Score](t, rr)
	assert.Equal(t, 2024, score.Year)
	assert.Equal(t, 4, score.Month)
	assert.Zero(t, score.Income)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/rpg?month=0", nil).Code)
}

func TestSchedules(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"name": "rent", "type": "EXPENSE", "amount": 500000, "category": "주거",
		"frequency": "MONTHLY_DATE", "day": 5, "startDate": "2024-02-05",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := decode[statusResponse](t, rr).ID
	require.NotZero(t, id)

	// Adding a schedule catches up immediately: February to April.
	all, err := ts.ledger.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rr = ts.do(t, http.MethodGet, "/api/schedules", nil)
	items := decode[[]core.ScheduleItem](t, rr)
	require.Len(t, items, 1)
	assert.Equal(t, "2024-04-05", items[0].LastGenerated.String())

	rr = ts.do(t, http.MethodPost, "/api/schedules/run", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[recurrence.Result](t, rr).Generated)

	items[0].Amount = 550000
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/schedules", items[0]).Code)
	items[0].ID = id + 1
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/api/schedules", items[0]).Code)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/schedules", map[string]any{"name": "", "type": "EXPENSE"}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/schedules?id=1", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/schedules?id="+jsonNumber(id), nil).Code)
}

func TestHealthReadyAndStatic(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := ts.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ledger")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rr.Body.String(), "ledger_requests_total")

	down := newTestServer(t, func(context.Context) error { return errors.New("journal unavailable") })
	rr = down.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "journal unavailable")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Less(t, rr.Code, 300)
}

func TestRateLimitOnlyAppliesToWrites(t *testing.T) {
	dir := t.TempDir()
	svc := services.NewLedgerService(ledger.NewStore(dir), nil, nil)
	categories, err := category.NewStore(dir, nil)
	require.NoError(t, err)
	srv := NewServer(Config{RateLimitPerMinute: 1}, Deps{Ledger: svc, Categories: categories})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	do := func(method string, body string) int {
		req := httptest.NewRequest(method, "/api/transactions?year=2024&month=1", bytes.NewBufferString(body))
		req.RemoteAddr = "198.51.100.7:1234"
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	body := `{"date":"2024-01-01","type":"expense","category":"식비","amount":1}`
	assert.Equal(t, http.StatusCreated, do(http.MethodPost, body))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, body))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(http.MethodGet, ""))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrDuplicateID, http.StatusConflict},
		{category.ErrCategoryExists, http.StatusConflict},
		{core.ErrProtectedCategory, http.StatusConflict},
		{core.ErrInvalidDate, http.StatusBadRequest},
		{budget.ErrInvalidYear, http.StatusBadRequest},
		{category.ErrInvalidAttribute, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
