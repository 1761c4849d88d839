// Package scoring turns a period of transactions and its budget into a
// role-playing style progress score.
package scoring

import (
	"math"
	"sort"

	"householdledger/internal/budget"
	"householdledger/internal/core"
)

// CategoryResolver is the view of the category store scoring needs.
type CategoryResolver interface {
	Normalize(category string) string
	IsSaving(category string) bool
}

// Scope selects the period being scored. Month 0 scores the whole year.
type Scope struct {
	Year  int
	Month int
}

func MonthScope(year, month int) Scope { return Scope{Year: year, Month: month} }
func YearScope(year int) Scope         { return Scope{Year: year} }

func (s Scope) IsYear() bool { return s.Month == 0 }

type Roles struct {
	Hunter   int `json:"hunter"`
	Guardian int `json:"guardian"`
	Cleric   int `json:"cleric"`
	Gremlin  int `json:"gremlin"`
}

type Score struct {
	Year            int     `json:"year"`
	Month           int     `json:"month"`
	Income          int64   `json:"income"`
	Expense         int64   `json:"expense"`
	Saving          int64   `json:"saving"`
	BudgetTotal     int64   `json:"budget"`
	SavingGoal      int64   `json:"saving_goal"`
	GoalMultiplier  float64 `json:"goal_multiplier"`
	SpendBonus      float64 `json:"spend_bonus"`
	SaveBonus       float64 `json:"save_bonus"`
	TotalMultiplier float64 `json:"total_multiplier"`
	TotalExp        float64 `json:"total_exp"`
	Level           int     `json:"level"`
	PartyHP         float64 `json:"party_hp"`
	Roles           Roles   `json:"roles"`
	GremlinLevel    int     `json:"gremlin_level"`
}

const (
	startingHP    = 100.0
	maxMultiplier = 1.5

	hunterExp   = 120.0
	guardianExp = 150.0
	clericExp   = 80.0
	gremlinExp  = 260.0

	clericDamage   = 0.5
	gremlinDamage  = 1.5
	gremlinPenalty = 0.5
)

// limits is the budget side of pass one.
type limits struct {
	total      int64
	savingGoal int64
	byCategory func(category string) int64
}

// Compute scores txs against snap for scope. It does not modify txs and is
// safe for concurrent use.
func Compute(txs []core.Transaction, snap budget.Snapshot, scope Scope, categories CategoryResolver) Score {
	var lim limits
	if scope.IsYear() {
		lim = yearLimits(snap, categories)
	} else {
		lim = monthLimits(snap.Month(scope.Month), categories)
	}

	score := Score{
		Year:        scope.Year,
		Month:       scope.Month,
		BudgetTotal: lim.total,
		SavingGoal:  lim.savingGoal,
		SpendBonus:  1,
		SaveBonus:   1,
		PartyHP:     startingHP,
	}
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			score.Income += tx.Amount
		case core.Expense:
			score.Expense += tx.Amount
		case core.Saving:
			score.Saving += tx.Amount
		}
	}

	var spendTight, saveTight float64
	if score.Income > 0 {
		income := float64(score.Income)
		spendTight = clamp((0.90-float64(score.BudgetTotal)/income)/0.30, 0, 1)
		saveTight = clamp((float64(score.SavingGoal)/income)/0.30, 0, 1)
	}
	score.GoalMultiplier = 1 + 0.10*spendTight + 0.10*saveTight
	if score.BudgetTotal > 0 && score.Expense <= score.BudgetTotal {
		score.SpendBonus = 1.1
	}
	if score.SavingGoal > 0 {
		score.SaveBonus = 1 + 0.15*clamp(float64(score.Saving)/float64(score.SavingGoal), 0, 1)
	}
	score.TotalMultiplier = math.Min(score.GoalMultiplier*score.SpendBonus*score.SaveBonus, maxMultiplier)

	simulate(&score, sorted(txs), scale(score.Income, scope), lim, categories)
	score.Level = int(math.Floor(score.TotalExp/100)) + 1
	return score
}

// simulate is pass two. Each transaction's effect depends on the hp and
// gremlin level left by every earlier one, so order matters.
func simulate(score *Score, txs []core.Transaction, scale float64, lim limits, categories CategoryResolver) {
	spent := map[string]int64{}
	hp := startingHP
	budgetTotal := float64(lim.total)

	for _, tx := range txs {
		if tx.Type == core.Transfer {
			continue
		}
		mult := score.TotalMultiplier
		if hp <= 0 {
			mult = 1
		}
		base := math.Log(1 + float64(tx.Amount)/scale)

		switch tx.Type {
		case core.Income:
			score.Roles.Hunter++
			score.TotalExp += hunterExp * base * mult
		case core.Saving:
			score.Roles.Guardian++
			score.TotalExp += guardianExp * base * mult
		case core.Expense:
			category := categories.Normalize(tx.Category)
			spent[category] += tx.Amount
			limit := lim.byCategory(category)

			if limit > 0 && spent[category] <= limit {
				score.Roles.Cleric++
				score.TotalExp += clericExp * base * mult
				if budgetTotal > 0 {
					hp -= float64(tx.Amount) / budgetTotal * 100 * clericDamage
				}
			} else {
				score.Roles.Gremlin++
				score.TotalExp += gremlinExp * base * mult
				score.GremlinLevel++
				if budgetTotal > 0 {
					hp -= float64(tx.Amount) / budgetTotal * 100 * gremlinDamage
				}
				hp -= float64(score.GremlinLevel) * gremlinPenalty
			}
		default:
			continue
		}
		if hp < 0 {
			hp = 0
		}
	}
	score.PartyHP = hp
}

// monthLimits reads one month block. Saving is decided on the stored key,
// limits are looked up by normalized category.
func monthLimits(month budget.MonthBudget, categories CategoryResolver) limits {
	lim := limits{
		byCategory: func(category string) int64 { return month.Expenses[category] },
	}
	for category, amount := range month.Expenses {
		if categories.IsSaving(category) {
			lim.savingGoal += amount
		} else {
			lim.total += amount
		}
	}
	return lim
}

// yearLimits sums every month by normalized category.
func yearLimits(snap budget.Snapshot, categories CategoryResolver) limits {
	perCategory := map[string]int64{}
	lim := limits{
		byCategory: func(category string) int64 { return perCategory[category] },
	}
	for _, month := range snap.Monthly {
		for category, amount := range month.Expenses {
			normalized := categories.Normalize(category)
			if categories.IsSaving(normalized) {
				lim.savingGoal += amount
				continue
			}
			lim.total += amount
			perCategory[normalized] += amount
		}
	}
	return lim
}

func scale(income int64, scope Scope) float64 {
	if scope.IsYear() {
		return math.Max(float64(income)*0.01, 1)
	}
	return math.Max(float64(income)/100, 10000)
}

// sorted returns a copy of txs ordered by (date, id).
func sorted(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
