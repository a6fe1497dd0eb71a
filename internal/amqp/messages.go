package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"gagyebu/internal/core"
)

// Change operations carried by ChangeEvent.Op
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeEvent tells other instances that a user's ledger changed on Date.
// Receivers re-query; the event carries no transaction data.
type ChangeEvent struct {
	UserID    string    `json:"user_id"`
	Date      string    `json:"date,omitempty"`
	Op        string    `json:"op"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeEvent creates an event stamped with the current time
func NewChangeEvent(userID, date, op, origin string) ChangeEvent {
	return ChangeEvent{
		UserID:    userID,
		Date:      date,
		Op:        op,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the fields a receiver relies on
func (e ChangeEvent) Validate() error {
	if e.UserID == "" {
		return errors.New("change event: missing user_id")
	}
	switch e.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return errors.New("change event: unknown op " + e.Op)
	}
	if e.Date != "" {
		if _, err := core.ParseDate(e.Date); err != nil {
			return err
		}
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes and validates an event
func ChangeEventFromJSON(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ChangeEvent{}, err
	}
	if err := ev.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}
