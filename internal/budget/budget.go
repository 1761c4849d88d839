// Package budget stores yearly budgets in a single JSON object keyed by year.
package budget

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// MonthBudget is one month of a yearly budget. Expenses maps a category to
// its spending limit. Goals is free-form and stored verbatim.
type MonthBudget struct {
	Expenses map[string]int64 `json:"expenses,omitempty"`
	Goals    json.RawMessage  `json:"goals,omitempty"`
}

// UnmarshalJSON accepts limits written as floats, such as 400000.0, and
// truncates them toward zero.
func (m *MonthBudget) UnmarshalJSON(data []byte) error {
	var raw struct {
		Expenses map[string]json.Number `json:"expenses"`
		Goals    json.RawMessage        `json:"goals"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := MonthBudget{Goals: raw.Goals}
	if raw.Expenses != nil {
		out.Expenses = make(map[string]int64, len(raw.Expenses))
		for category, n := range raw.Expenses {
			amount, err := limitAmount(n)
			if err != nil {
				return fmt.Errorf("expense limit %q: %w", category, err)
			}
			out.Expenses[category] = amount
		}
	}
	*m = out
	return nil
}

func limitAmount(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, fmt.Errorf("%s out of range", n)
	}
	return int64(f), nil
}

// Snapshot is the budget of one year:
//
//	{"annual_goals": {...}, "monthly": {"03": {"expenses": {"식비": 400000}, "goals": {...}}}}
type Snapshot struct {
	AnnualGoals json.RawMessage        `json:"annual_goals,omitempty"`
	Monthly     map[string]MonthBudget `json:"monthly,omitempty"`
}

// MonthKey formats month as the two-digit key used in Snapshot.Monthly.
func MonthKey(month int) string {
	return fmt.Sprintf("%02d", month)
}

// YearKey formats year as the top-level key of the budget file.
func YearKey(year int) string {
	return strconv.Itoa(year)
}

// Month returns the budget block for month, or an empty block.
func (s Snapshot) Month(month int) MonthBudget {
	return s.Monthly[MonthKey(month)]
}

// IsEmpty reports whether the snapshot carries no data at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.AnnualGoals) == 0 && len(s.Monthly) == 0
}

// Merge applies update on top of s. annual_goals is replaced when present.
// For each month in update, expenses and goals are replaced when present.
func (s Snapshot) Merge(update Snapshot) Snapshot {
	out := s.clone()
	if update.AnnualGoals != nil {
		out.AnnualGoals = cloneRaw(update.AnnualGoals)
	}
	for key, month := range update.Monthly {
		if out.Monthly == nil {
			out.Monthly = map[string]MonthBudget{}
		}
		target := out.Monthly[key]
		if month.Expenses != nil {
			target.Expenses = cloneExpenses(month.Expenses)
		}
		if month.Goals != nil {
			target.Goals = cloneRaw(month.Goals)
		}
		out.Monthly[key] = target
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{AnnualGoals: cloneRaw(s.AnnualGoals)}
	if s.Monthly != nil {
		out.Monthly = make(map[string]MonthBudget, len(s.Monthly))
		for key, month := range s.Monthly {
			out.Monthly[key] = MonthBudget{
				Expenses: cloneExpenses(month.Expenses),
				Goals:    cloneRaw(month.Goals),
			}
		}
	}
	return out
}

func cloneExpenses(in map[string]int64) map[string]int64 {
	if in == nil {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	return append(json.RawMessage(nil), in...)
}
