// Package messages defines the wire protocol between agents,
// spectators and the arena server.
package messages

// Client actions.
const (
	ActionAuth       = "auth"
	ActionSeek       = "seek"
	ActionCancelSeek = "cancel_seek"
	ActionMove       = "move"
	ActionPing       = "ping"
)

// Inbound is a message from the client. Fields are populated according
// to Action; unknown actions are answered with an error event.
type Inbound struct {
	Action   string `json:"action"`
	APIKey   string `json:"api_key,omitempty"`
	Category string `json:"category,omitempty"`
	Move     string `json:"move,omitempty"`
}
