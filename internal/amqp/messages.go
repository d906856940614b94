package amqp

import (
	"encoding/json"
	"time"
)

// Sync actions carried by IncomeSyncMessage.
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// IncomeSyncMessage is a lightweight pointer message for mirroring an income
// record to Google Sheets. It carries only the record ID and the action; the
// worker fetches the full record from the database.
type IncomeSyncMessage struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewIncomeSyncMessage creates a sync message for the given record and action
func NewIncomeSyncMessage(id, action string) *IncomeSyncMessage {
	return &IncomeSyncMessage{
		ID:        id,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *IncomeSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IncomeSyncMessageFromJSON creates a message from JSON bytes
func IncomeSyncMessageFromJSON(data []byte) (*IncomeSyncMessage, error) {
	var msg IncomeSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errEmptyMessageID
	}
	return &msg, nil
}
