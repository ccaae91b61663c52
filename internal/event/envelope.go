// Package event defines the audit event model: every successful ledger
// operation emits exactly one enveloped record carrying a global sequence
// and a hash chain over serialized state.
package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeMarketListed
	EventTypeMarketUpdated
	EventTypeDeposited
	EventTypeWithdrawn
	EventTypeBorrowed
	EventTypeRepaid
	EventTypeLiquidated
	EventTypeSystemPaused
	EventTypeSystemUnpaused
)

// Envelope wraps every event in the audit log
type Envelope struct {
	// Random identifier assigned at emission
	EventID string

	// Global monotonic sequence assigned by the processor
	Sequence int64

	// Event type discriminator
	EventType EventType

	// Primary user context (zero address for admin events)
	User common.Address

	// Asset context (empty for pause events)
	Asset string

	// JSON-encoded event-specific data
	Payload []byte

	// Wall-clock time at emission
	Timestamp time.Time

	// SHA-256 of ledger state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

func (et EventType) String() string {
	switch et {
	case EventTypeMarketListed:
		return "MarketListed"
	case EventTypeMarketUpdated:
		return "MarketUpdated"
	case EventTypeDeposited:
		return "Deposited"
	case EventTypeWithdrawn:
		return "Withdrawn"
	case EventTypeBorrowed:
		return "Borrowed"
	case EventTypeRepaid:
		return "Repaid"
	case EventTypeLiquidated:
		return "Liquidated"
	case EventTypeSystemPaused:
		return "SystemPaused"
	case EventTypeSystemUnpaused:
		return "SystemUnpaused"
	default:
		return "Unknown"
	}
}
