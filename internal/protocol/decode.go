package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned for frames whose event name is not an inbound event.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformed is returned for frames whose shape does not match their event.
	ErrMalformed = errors.New("malformed payload")
)

// Decode parses a raw frame into its tagged inbound variant. Unknown fields,
// missing required fields and unknown events are rejected.
func Decode(raw []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Event {
	case EventSendMessage:
		var p SendMessage
		if err := decodeStrict(f.Data, &p); err != nil {
			return nil, err
		}
		if p.Recipient == "" {
			return nil, fmt.Errorf("%w: recipient is required", ErrMalformed)
		}
		return p, nil
	case EventMarkAsRead:
		var p MarkAsRead
		if err := decodeStrict(f.Data, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("%w: messageId is required", ErrMalformed)
		}
		return p, nil
	case EventTyping, EventStopTyping:
		var p Typing
		if err := decodeStrict(f.Data, &p); err != nil {
			return nil, err
		}
		if p.Recipient == "" {
			return nil, fmt.Errorf("%w: recipient is required", ErrMalformed)
		}
		p.IsTyping = f.Event == EventTyping
		return p, nil
	case EventCallInvitation, EventCallAccepted, EventCallRejected, EventCallEnded:
		var p CallSignal
		if err := decodeStrict(f.Data, &p); err != nil {
			return nil, err
		}
		p.Kind = f.Event
		if err := validateCall(p); err != nil {
			return nil, err
		}
		return p, nil
	case "":
		return nil, fmt.Errorf("%w: event is required", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

func decodeStrict(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: data is required", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func validateCall(c CallSignal) error {
	if c.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrMalformed)
	}
	if c.Kind != EventCallInvitation {
		return nil
	}
	if c.CallType != CallAudio && c.CallType != CallVideo {
		return fmt.Errorf("%w: callType must be audio or video", ErrMalformed)
	}
	if c.RoomName == "" {
		return fmt.Errorf("%w: roomName is required", ErrMalformed)
	}
	return nil
}
