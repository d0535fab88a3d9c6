package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	EntityBoard = "board"
	EntityList  = "list"
	EntityCard  = "card"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event notifies listeners about a change to a single entity.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	OwnerID    string          `json:"ownerId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
}

// NewEvent builds an event of type "<entityType>-<action>". Data is optional.
func NewEvent(entityType, action, entityID, ownerID string, data any, ts int64) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       entityType + "-" + action,
		EntityType: entityType,
		EntityID:   entityID,
		OwnerID:    ownerID,
		Time:       ts,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}
