package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"householdledger/internal/core"
)

// EventKind names the ledger mutation an event reports.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
	EventGenerated EventKind = "generated"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted, EventGenerated:
		return true
	}
	return false
}

// LedgerEvent carries the full transaction so consumers never read the shard
// files.
type LedgerEvent struct {
	MessageID   string           `json:"message_id"`
	Kind        EventKind        `json:"kind"`
	Transaction core.Transaction `json:"transaction"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func NewLedgerEvent(kind EventKind, tx core.Transaction) *LedgerEvent {
	return &LedgerEvent{
		MessageID:   uuid.NewString(),
		Kind:        kind,
		Transaction: tx,
		OccurredAt:  time.Now().UTC(),
	}
}

func (e *LedgerEvent) Validate() error {
	if e.MessageID == "" {
		return errors.New("missing message id")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
