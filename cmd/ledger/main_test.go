package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"householdledger/internal/scoring"
)

func TestPeriod(t *testing.T) {
	now := time.Date(2024, 4, 10, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name        string
		year, month int
		wantYear    int
		wantMonth   int
		wantMonthly bool
		wantErr     bool
	}{
		{"neither", 0, 0, 2024, 4, true, false},
		{"year only", 2023, 0, 2023, 0, false, false},
		{"month only", 0, 2, 2024, 2, true, false},
		{"both", 2022, 12, 2022, 12, true, false},
		{"bad month", 2024, 13, 0, 0, false, true},
		{"negative year", -1, 1, 0, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, month, monthly, err := period(tt.year, tt.month, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, year)
			assert.Equal(t, tt.wantMonth, month)
			assert.Equal(t, tt.wantMonthly, monthly)
		})
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestCommands_TxAndScore(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	dir := t.TempDir()

	out := execute(t, "--data-dir", dir, "tx", "add",
		"--date", "2024-03-15", "--type", "expense", "--category", "식비", "--memo", "lunch", "--amount", "12,000")
	assert.Contains(t, out, "2024-03-15 expense 식비 lunch 12,000")

	out = execute(t, "--data-dir", dir, "tx", "add",
		"--date", "2024-03-01", "--type", "INCOME", "--category", "nowhere", "--amount", "3000000")
	assert.Contains(t, out, "2024-03-01 income 기타")

	out = execute(t, "--data-dir", dir, "tx", "list", "--year", "2024", "--month", "3")
	assert.Contains(t, out, "lunch 12,000")
	assert.Contains(t, out, "3,000,000")

	out = execute(t, "--data-dir", dir, "score", "--year", "2024", "--month", "3")
	var score scoring.Score
	require.NoError(t, json.Unmarshal([]byte(out), &score))
	assert.Equal(t, int64(3000000), score.Income)
	assert.Equal(t, int64(12000), score.Expense)
}

func TestCommands_Schedules(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	dir := t.TempDir()

	assert.Contains(t, execute(t, "--data-dir", dir, "schedules", "list"), "no schedules")

	schedules := `[{"id":1,"name":"rent","type":"EXPENSE","amount":500000,"category":"주거",` +
		`"frequency":"MONTHLY_DATE","day":5,"startDate":"2024-01-05","endDate":"","lastGenerated":""}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schedules.json"), []byte(schedules), 0o644))

	out := execute(t, "--data-dir", dir, "schedules", "run", "--today", "2024-04-10")
	assert.Contains(t, out, "generated 4 transaction(s), 1 schedule(s) updated")
	assert.Contains(t, out, "2024-01-05 expense 주거 rent 500,000")

	out = execute(t, "--data-dir", dir, "schedules", "list")
	assert.Contains(t, out, "[1] rent EXPENSE 주거 500,000 day=5 start=2024-01-05 last=2024-04-05")

	out = execute(t, "--data-dir", dir, "schedules", "run", "--today", "2024-04-10")
	assert.Contains(t, out, "generated 0 transaction(s), 0 schedule(s) updated")
}
