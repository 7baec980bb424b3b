package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finboard/internal/core"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ExpenseEvent carries the full record so consumers need no database access.
// Deleted events only guarantee ID and OwnerID.
type ExpenseEvent struct {
	Type        EventType `json:"type"`
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amountCents,omitempty"`
	Category    string    `json:"category,omitempty"`
	Date        string    `json:"date,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewExpenseEvent builds an event for e.
func NewExpenseEvent(t EventType, e core.Expense) *ExpenseEvent {
	ev := &ExpenseEvent{
		Type:      t,
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Timestamp: time.Now().UTC(),
	}
	if t != EventDeleted {
		ev.Description = e.Description
		ev.AmountCents = e.Amount.Cents
		ev.Category = e.Category
		ev.Date = e.Date.String()
	}
	return ev
}

func (m *ExpenseEvent) Validate() error {
	switch m.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if m.ID == "" {
		return errors.New("missing expense id")
	}
	return nil
}

// Expense reconstructs the record carried by a created or updated event.
func (m *ExpenseEvent) Expense() (core.Expense, error) {
	d, err := core.ParseDate(m.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Description: m.Description,
		Amount:      core.Money{Cents: m.AmountCents},
		Category:    m.Category,
		Date:        d,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates an event.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
