package browser

import (
	"encoding/json"
	"fmt"
)

// wireCommand is an outgoing devtools command. Commands nested inside a
// Target.sendMessageToTarget envelope use the same shape, serialized
// into the envelope's message string.
type wireCommand struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// wireMessage is any incoming frame: a reply (id set), an error reply,
// or an event (method set, no id).
type wireMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wireError) Error() string {
	return fmt.Sprintf("browser: %s (code %d)", e.Message, e.Code)
}

// forwardedParams is the payload of Target.receivedMessageFromTarget.
// Message holds a complete inner frame encoded as a JSON string.
type forwardedParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}
