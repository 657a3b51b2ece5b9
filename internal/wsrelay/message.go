package wsrelay

import "encoding/json"

// Message represents the JSON payload exchanged with websocket clients.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// MessageTypeStatus carries a progress message for the user.
	MessageTypeStatus = "status"
	// MessageTypeTokens carries freshly received tokens.
	MessageTypeTokens = "tokens"
	// MessageTypeCallback delivers a redirect callback URI from the client.
	MessageTypeCallback = "callback"
	// MessageTypeCancel asks to abandon the pending authorization request.
	MessageTypeCancel = "cancel"
	// MessageTypeOutcome answers a callback or cancel message.
	MessageTypeOutcome = "outcome"
	// MessageTypeError carries an error response.
	MessageTypeError = "error"
	// MessageTypePing represents ping messages from clients.
	MessageTypePing = "ping"
	// MessageTypePong represents pong responses back to clients.
	MessageTypePong = "pong"
)
