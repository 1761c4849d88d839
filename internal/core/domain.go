package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the fixed-width date format used at every boundary.
const DateLayout = "2006-01-02"

const (
	Income   TxType = "income"
	Expense  TxType = "expense"
	Transfer TxType = "transfer"
	Saving   TxType = "saving"
)

const (
	ScheduleIncome   ScheduleType = "INCOME"
	ScheduleExpense  ScheduleType = "EXPENSE"
	ScheduleTransfer ScheduleType = "TRANSFER"
)

// MonthlyDate is the only schedule frequency the recurrence engine handles.
const MonthlyDate Frequency = "MONTHLY_DATE"

type (
	TxType       string
	ScheduleType string
	Frequency    string

	// Date is a calendar day at UTC midnight. The zero value means unset and
	// serializes as "". A stored value that is not YYYY-MM-DD decodes as a
	// malformed Date that keeps its text, so one bad field never makes a whole
	// file unreadable.
	Date struct {
		time.Time
		raw string
	}

	// Transaction is one ledger record. Date stays a string so records with an
	// unparseable date remain storable.
	Transaction struct {
		ID       int64  `json:"id"`
		Date     string `json:"date"`
		Type     TxType `json:"type"`
		Category string `json:"category"`
		Memo     string `json:"memo"`
		Amount   int64  `json:"amount"`
	}

	ScheduleItem struct {
		ID            int64        `json:"id"`
		Name          string       `json:"name"`
		Type          ScheduleType `json:"type"`
		Amount        int64        `json:"amount"`
		Category      string       `json:"category"`
		Frequency     Frequency    `json:"frequency"`
		Day           int          `json:"day"` // 0 = same day as start
		StartDate     Date         `json:"startDate"`
		EndDate       Date         `json:"endDate"`
		LastGenerated Date         `json:"lastGenerated"`
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidType       = errors.New("invalid type")
	ErrInvalidDay        = errors.New("invalid day")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyCategory     = errors.New("empty category")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrProtectedCategory = errors.New("category cannot be removed")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is unset
func (d Date) IsEmpty() bool {
	return d.IsZero() && d.raw == ""
}

// Malformed reports whether the date was decoded from text that is not a
// YYYY-MM-DD date.
func (d Date) Malformed() bool {
	return d.raw != ""
}

func (d Date) String() string {
	if d.raw != "" {
		return d.raw
	}
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		*d = Date{raw: s}
		return nil
	}
	*d = parsed
	return nil
}

// ParseTxType maps free-form input to a transaction type. Anything that is not
// income, saving or transfer is an expense.
func ParseTxType(s string) TxType {
	switch TxType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income
	case Saving:
		return Saving
	case Transfer:
		return Transfer
	default:
		return Expense
	}
}

func (t TxType) Valid() bool {
	switch t {
	case Income, Expense, Transfer, Saving:
		return true
	}
	return false
}

func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleIncome, ScheduleExpense, ScheduleTransfer:
		return true
	}
	return false
}

// TxType maps a schedule type onto the transaction it generates.
func (t ScheduleType) TxType() TxType {
	switch t {
	case ScheduleIncome:
		return Income
	case ScheduleTransfer:
		return Transfer
	default:
		return Expense
	}
}

// ParsedDate returns the transaction date as a Date.
func (t Transaction) ParsedDate() (Date, error) {
	return ParseDate(t.Date)
}

func (t Transaction) Validate() error {
	if _, err := t.ParsedDate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if t.Amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// HasMalformedDate reports whether any of the schedule's dates failed to
// parse when it was loaded.
func (s ScheduleItem) HasMalformedDate() bool {
	return s.StartDate.Malformed() || s.EndDate.Malformed() || s.LastGenerated.Malformed()
}

func (s ScheduleItem) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(s.Category) == "" {
		return ErrEmptyCategory
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, s.Type)
	}
	if s.Amount < 0 {
		return ErrInvalidAmount
	}
	if s.Day < 0 || s.Day > 31 {
		return ErrInvalidDay
	}
	if s.StartDate.IsEmpty() {
		return fmt.Errorf("start date: %w", ErrInvalidDate)
	}
	if s.HasMalformedDate() {
		return fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrInvalidDate)
	}
	if !s.EndDate.IsEmpty() && s.EndDate.Before(s.StartDate.Time) {
		return errors.New("end date must not be before start date")
	}
	return nil
}
