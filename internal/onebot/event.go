// Package onebot models the JSON wire protocol spoken to the chat platform:
// inbound events, outbound action requests, and message segments.
package onebot

import (
	"encoding/json"
	"errors"
)

// Post types for inbound events.
const (
	PostTypeMessage   = "message"
	PostTypeNotice    = "notice"
	PostTypeRequest   = "request"
	PostTypeMetaEvent = "meta_event"
)

// Message types within a message event.
const (
	MessageTypeGroup   = "group"
	MessageTypePrivate = "private"
)

// CorrelationKind classifies how an event can be matched to a pending waiter.
type CorrelationKind int

const (
	// CorrelateNone marks events nobody could be waiting on.
	CorrelateNone CorrelationKind = iota
	// CorrelateEcho marks replies to an outbound action call.
	CorrelateEcho
	// CorrelateSubject marks chat messages addressable by group/user id.
	CorrelateSubject
)

func (k CorrelationKind) String() string {
	switch k {
	case CorrelateEcho:
		return "echo"
	case CorrelateSubject:
		return "subject"
	default:
		return "none"
	}
}

// Correlation is the event's correlation key, computed once at decode time.
// An event carrying an echo token is always CorrelateEcho, even when it also
// has subject ids.
type Correlation struct {
	Kind  CorrelationKind
	Echo  string
	Group int64
	User  int64
}

// Sender describes the author of a message event.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

// Event is a single decoded inbound frame: either a platform event
// (message, notice, request, meta) or a reply to an action call.
type Event struct {
	Time        int64
	SelfID      int64
	PostType    string
	MessageType string
	SubType     string
	MessageID   int64
	GroupID     int64
	UserID      int64
	RawMessage  string
	Message     []Segment
	Sender      Sender

	// Action-reply fields.
	Status  string
	Retcode int64
	Echo    string
	Data    json.RawMessage

	// Correlation is filled by DecodeEvent and never recomputed.
	Correlation Correlation

	// Raw preserves the original frame bytes.
	Raw json.RawMessage
}

// ErrEmptyFrame is returned for zero-length frames.
var ErrEmptyFrame = errors.New("empty frame")

// wireEvent is the decode shape; message and echo need lenient handling.
type wireEvent struct {
	Time        int64           `json:"time"`
	SelfID      int64           `json:"self_id"`
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	SubType     string          `json:"sub_type"`
	MessageID   int64           `json:"message_id"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Sender      Sender          `json:"sender"`
	Status      string          `json:"status"`
	Retcode     int64           `json:"retcode"`
	Echo        json.RawMessage `json:"echo"`
	Data        json.RawMessage `json:"data"`
}

// DecodeEvent parses one inbound frame and computes its correlation key.
func DecodeEvent(data []byte) (*Event, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	ev := &Event{
		Time:        w.Time,
		SelfID:      w.SelfID,
		PostType:    w.PostType,
		MessageType: w.MessageType,
		SubType:     w.SubType,
		MessageID:   w.MessageID,
		GroupID:     w.GroupID,
		UserID:      w.UserID,
		RawMessage:  w.RawMessage,
		Sender:      w.Sender,
		Status:      w.Status,
		Retcode:     w.Retcode,
		Data:        w.Data,
		Raw:         append(json.RawMessage(nil), data...),
	}

	// Echo tokens are strings on our side, but stay lenient about what the
	// platform reflects back.
	if len(w.Echo) > 0 && string(w.Echo) != "null" {
		var s string
		if err := json.Unmarshal(w.Echo, &s); err == nil {
			ev.Echo = s
		} else {
			ev.Echo = string(w.Echo)
		}
	}

	if len(w.Message) > 0 {
		segs, err := ParseMessage(w.Message)
		if err != nil {
			return nil, err
		}
		ev.Message = segs
		if ev.RawMessage == "" {
			ev.RawMessage = PlainText(segs)
		}
	}

	ev.Correlation = correlationFor(ev)
	return ev, nil
}

// correlationFor computes the one correlation tag for an event.
// Echo wins over subject ids; only chat messages are subject-addressable.
func correlationFor(ev *Event) Correlation {
	if ev.Echo != "" {
		return Correlation{Kind: CorrelateEcho, Echo: ev.Echo}
	}
	if ev.PostType == PostTypeMessage && (ev.GroupID != 0 || ev.UserID != 0) {
		return Correlation{Kind: CorrelateSubject, Group: ev.GroupID, User: ev.UserID}
	}
	return Correlation{Kind: CorrelateNone}
}

// IsGroupMessage reports whether the event is a group chat message.
func (e *Event) IsGroupMessage() bool {
	return e.PostType == PostTypeMessage && e.MessageType == MessageTypeGroup
}

// IsPrivateMessage reports whether the event is a direct chat message.
func (e *Event) IsPrivateMessage() bool {
	return e.PostType == PostTypeMessage && e.MessageType == MessageTypePrivate
}

// PlainText returns the concatenated text content of the event's message.
func (e *Event) PlainText() string {
	return PlainText(e.Message)
}

// DecodeData unmarshals the action-reply payload into v.
func (e *Event) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.New("event has no data payload")
	}
	return json.Unmarshal(e.Data, v)
}
