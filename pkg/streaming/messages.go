package streaming

import (
	"encoding/json"

	"github.com/doggo-app/locshare/pkg/core"
)

// Message type constants for the store protocol.
const (
	// client -> server
	TypeSet         = "set"
	TypeDelete      = "delete"
	TypeGet         = "get"
	TypeChildren    = "children"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"

	// server -> client
	TypeAck          = "ack"
	TypeChildAdded   = "child_added"
	TypeChildChanged = "child_changed"
	TypeChildRemoved = "child_removed"
	TypeChildMoved   = "child_moved"
	TypeCancelled    = "cancelled" // server ended a subscription
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"` // request id echoed back in the ack
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type    string          `json:"type"` // always "ack"
	For     string          `json:"for"`  // the message type being acknowledged
	ID      uint64          `json:"id,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"` // machine-readable error class
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack error codes.
const (
	CodeNotFound   = "not_found"
	CodeBadRequest = "bad_request"
	CodeClosed     = "closed"
	CodeInternal   = "internal"
)

// SetPayload writes Record under Key.
type SetPayload struct {
	Key    string              `json:"key"`
	Record core.LocationRecord `json:"record"`
}

// KeyPayload addresses a single child for delete and get.
type KeyPayload struct {
	Key string `json:"key"`
}

// ChildPayload carries one child of the store root.
type ChildPayload struct {
	Key    string              `json:"key"`
	Record core.LocationRecord `json:"record"`
}

// ChildrenPayload is the ack payload of a children request.
type ChildrenPayload struct {
	Children []ChildPayload `json:"children"`
}

// SubscriptionPayload names a subscription by the id of the subscribe request
// that opened it. Child events carry the same id in Envelope.ID.
type SubscriptionPayload struct {
	ID uint64 `json:"id"`
}

// CancelledPayload explains why the server ended a subscription.
type CancelledPayload struct {
	Error string `json:"error"`
}
