// Package ws pushes bet notifications to the owner's WebSocket connections.
// messages.go defines the envelope written to clients.
package ws

import (
	"time"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

// Message types produced by the betting service.
const (
	MsgTypeBetPlaced    MsgType = "bet_placed"
	MsgTypeBetSettled   MsgType = "bet_settled"
	MsgTypeBetCancelled MsgType = "bet_cancelled"
)

// Message is the envelope of every pushed message.  Data is the bet (placed,
// settled) or the cancel result.
type Message struct {
	Type      MsgType   `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}
