package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"householdledger/internal/core"
	"householdledger/internal/log"
)

// TransactionAdder stores a transaction under a ledger-unique id and returns
// the id it was stored under.
type TransactionAdder interface {
	AddUnique(ctx context.Context, tx core.Transaction) (int64, error)
}

// Result summarizes one catch-up pass.
type Result struct {
	Generated        []core.Transaction `json:"generated"`
	SchedulesUpdated int                `json:"schedules_updated"`
}

// Engine generates the transactions recurring schedules owe up to a given day.
type Engine struct {
	schedules *ScheduleStore
	ledger    TransactionAdder
	steppers  Steppers
	logger    *log.Logger
}

func NewEngine(schedules *ScheduleStore, ledger TransactionAdder, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		schedules: schedules,
		ledger:    ledger,
		steppers:  DefaultSteppers(),
		logger:    logger.WithComponent(log.ComponentRecurrence),
	}
}

// RegisterStepper adds or replaces the stepper used for frequency.
func (e *Engine) RegisterStepper(frequency core.Frequency, stepper Stepper) {
	e.steppers[frequency] = stepper
}

// Schedules exposes the store the engine reads from.
func (e *Engine) Schedules() *ScheduleStore { return e.schedules }

// GenerateDueTransactions adds every transaction due on or before today and
// advances each schedule's lastGenerated. It holds the schedule lock for the
// whole pass. When the ledger rejects a transaction, schedules advanced so far
// are still saved and the error is returned.
func (e *Engine) GenerateDueTransactions(ctx context.Context, today time.Time) (Result, error) {
	if e.schedules == nil || e.ledger == nil {
		return Result{}, errors.New("recurrence engine not properly initialized")
	}
	day := dateOf(today)
	var result Result

	err := e.schedules.mutate(ctx, func(items []core.ScheduleItem) (bool, error) {
		for i := range items {
			if err := ctx.Err(); err != nil {
				return result.SchedulesUpdated > 0, err
			}
			generated, err := e.catchUp(ctx, &items[i], day)
			if len(generated) > 0 {
				result.Generated = append(result.Generated, generated...)
				result.SchedulesUpdated++
			}
			if err != nil {
				return result.SchedulesUpdated > 0, err
			}
		}
		return result.SchedulesUpdated > 0, nil
	})
	if err != nil {
		return result, err
	}
	e.logger.InfoContext(ctx, "Recurring schedules processed",
		log.FieldOperation, log.OpGenerate,
		log.FieldGenerated, len(result.Generated),
		"schedules_updated", result.SchedulesUpdated,
		"today", day.Format(core.DateLayout))
	return result, nil
}

// catchUp generates every due transaction for item and returns the ones the
// ledger accepted. item.LastGenerated always matches the last of them.
func (e *Engine) catchUp(ctx context.Context, item *core.ScheduleItem, today time.Time) ([]core.Transaction, error) {
	stepper, err := e.steppers.Lookup(item.Frequency)
	if err != nil {
		e.logger.DebugContext(ctx, "Skipping schedule",
			log.FieldScheduleID, item.ID,
			log.FieldError, err)
		return nil, nil
	}
	if item.HasMalformedDate() {
		e.logger.WarnContext(ctx, "Skipping schedule with malformed date",
			log.FieldScheduleID, item.ID,
			log.FieldScheduleName, item.Name,
			"start_date", item.StartDate.String(),
			"end_date", item.EndDate.String(),
			"last_generated", item.LastGenerated.String())
		return nil, nil
	}
	due, ok := firstDue(stepper, *item)
	if !ok {
		return nil, nil
	}

	var generated []core.Transaction
	for !due.After(today) {
		if !item.EndDate.IsEmpty() && due.After(item.EndDate.Time) {
			break
		}
		tx := core.Transaction{
			Date:     due.Format(core.DateLayout),
			Type:     item.Type.TxType(),
			Category: item.Category,
			Memo:     item.Name,
			Amount:   item.Amount,
		}
		id, err := e.ledger.AddUnique(ctx, tx)
		if err != nil {
			return generated, fmt.Errorf("generate %s for schedule %d: %w", tx.Date, item.ID, err)
		}
		tx.ID = id
		item.LastGenerated = core.Date{Time: due}
		generated = append(generated, tx)
		e.logger.InfoContext(ctx, "Generated transaction from schedule",
			log.FieldScheduleID, item.ID,
			log.FieldScheduleName, item.Name,
			log.FieldTxID, tx.ID,
			log.FieldTxDate, tx.Date,
			log.FieldAmount, tx.Amount)
		due = stepper.Next(*item, due)
	}
	return generated, nil
}
