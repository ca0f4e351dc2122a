package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// LedgerSyncMessage carries only the transaction id and version; the worker
// reloads the row and skips it when the stored version is newer.
type LedgerSyncMessage struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerSyncMessage(id string, version int64) *LedgerSyncMessage {
	return &LedgerSyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("ledger sync message without id")
	}
	return &msg, nil
}
