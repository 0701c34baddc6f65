package onebot

import "encoding/json"

// Request is an outbound action call. A request carrying an echo token
// expects a correlated reply; one without is fire-and-forget.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	Echo   string         `json:"echo,omitempty"`
}

// NewRequest creates a fire-and-forget action request.
func NewRequest(action string, params map[string]any) *Request {
	return &Request{Action: action, Params: params}
}

// WithEcho attaches a correlation token and returns the request.
func (r *Request) WithEcho(echo string) *Request {
	r.Echo = echo
	return r
}

// Marshal encodes the request as a single JSON frame.
func (r *Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Writer sends one outbound frame at a time. Implementations serialize
// concurrent callers so frames are never interleaved mid-write.
type Writer interface {
	Send(r *Request) error
}
