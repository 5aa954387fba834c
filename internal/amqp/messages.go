package amqp

import (
	"encoding/json"
	"time"

	"scadenze/internal/core"
)

// Sync request reasons. A full sync reconciles every section; entity
// requests target one obligation; cancel requests remove an entity's
// notifications; clear drops the whole schedule.
const (
	ReasonFullSync     = "full_sync"
	ReasonEntitySync   = "entity_sync"
	ReasonCancelEntity = "cancel_entity"
	ReasonClearAll     = "clear_all"
)

// SyncRequestMessage asks the worker to run a reconciliation pass.
// Entity-scoped requests carry the obligation ID and section; the worker
// fetches the obligation itself from the database.
type SyncRequestMessage struct {
	Reason    string       `json:"reason"`
	EntityID  int64        `json:"entity_id,omitempty"`
	Section   core.Section `json:"section,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewFullSyncMessage creates a request for a full reconciliation pass.
func NewFullSyncMessage() *SyncRequestMessage {
	return &SyncRequestMessage{
		Reason:    ReasonFullSync,
		Timestamp: time.Now(),
	}
}

// NewEntitySyncMessage creates a request scoped to one obligation.
func NewEntitySyncMessage(entityID int64, section core.Section) *SyncRequestMessage {
	return &SyncRequestMessage{
		Reason:    ReasonEntitySync,
		EntityID:  entityID,
		Section:   section,
		Timestamp: time.Now(),
	}
}

// NewCancelEntityMessage creates a request to drop one obligation's
// scheduled notifications.
func NewCancelEntityMessage(entityID int64, section core.Section) *SyncRequestMessage {
	return &SyncRequestMessage{
		Reason:    ReasonCancelEntity,
		EntityID:  entityID,
		Section:   section,
		Timestamp: time.Now(),
	}
}

// NewClearAllMessage creates a request to drop every scheduled
// notification owned by this module.
func NewClearAllMessage() *SyncRequestMessage {
	return &SyncRequestMessage{
		Reason:    ReasonClearAll,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
