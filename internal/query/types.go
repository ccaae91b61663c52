package query

import (
	"encoding/json"
	"time"
)

// EventRecord is one persisted audit event as served to API clients.
type EventRecord struct {
	Sequence  int64           `json:"sequence"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	UserAddr  string          `json:"user_addr"`
	Asset     string          `json:"asset,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	StateHash []byte          `json:"state_hash"`
	PrevHash  []byte          `json:"prev_hash"`
	Timestamp time.Time       `json:"timestamp"`
}

// IntegrityReport summarizes a hash chain verification pass.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
