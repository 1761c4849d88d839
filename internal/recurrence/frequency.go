package recurrence

import (
	"fmt"
	"time"

	"householdledger/internal/core"
)

// Stepper walks the due dates of one schedule frequency.
type Stepper interface {
	// First returns the first due date of a schedule that has never run.
	First(item core.ScheduleItem) (time.Time, bool)
	// Next returns the due date following from.
	Next(item core.ScheduleItem, from time.Time) time.Time
}

// MonthlyDateStepper fires once a month on the schedule's day.
type MonthlyDateStepper struct{}

func (MonthlyDateStepper) First(item core.ScheduleItem) (time.Time, bool) {
	item.LastGenerated = core.Date{}
	return NextDueDate(item)
}

func (MonthlyDateStepper) Next(item core.ScheduleItem, from time.Time) time.Time {
	return AddMonths(from, 1, item.Day)
}

// Steppers maps frequencies to their steppers. Frequencies without an entry
// are skipped by the engine.
type Steppers map[core.Frequency]Stepper

// DefaultSteppers returns the frequencies the engine handles out of the box.
func DefaultSteppers() Steppers {
	return Steppers{
		core.MonthlyDate: MonthlyDateStepper{},
	}
}

// Lookup returns the stepper registered for frequency.
func (s Steppers) Lookup(frequency core.Frequency) (Stepper, error) {
	stepper, ok := s[frequency]
	if !ok {
		return nil, fmt.Errorf("unsupported frequency: %q", frequency)
	}
	return stepper, nil
}

// firstDue returns the next due date for item, continuing from lastGenerated
// when it is set.
func firstDue(stepper Stepper, item core.ScheduleItem) (time.Time, bool) {
	if !item.LastGenerated.IsEmpty() {
		return stepper.Next(item, item.LastGenerated.Time), true
	}
	return stepper.First(item)
}
