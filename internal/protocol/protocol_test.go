package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/dmchat/internal/store"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			"send message",
			`{"event":"send_message","data":{"recipient":"bob","content":"hi","messageType":"text"}}`,
			SendMessage{Recipient: "bob", Content: "hi", MessageType: "text"},
		},
		{
			"send message without type",
			`{"event":"send_message","data":{"recipient":"bob","content":"hi"}}`,
			SendMessage{Recipient: "bob", Content: "hi"},
		},
		{
			"mark as read",
			`{"event":"mark_as_read","data":{"messageId":"m1"}}`,
			MarkAsRead{MessageID: "m1"},
		},
		{
			"typing",
			`{"event":"typing","data":{"recipient":"bob"}}`,
			Typing{Recipient: "bob", IsTyping: true},
		},
		{
			"stop typing",
			`{"event":"stop_typing","data":{"recipient":"bob"}}`,
			Typing{Recipient: "bob", IsTyping: false},
		},
		{
			"call invitation",
			`{"event":"call_invitation","data":{"recipient":"bob","callType":"video","roomName":"r1"}}`,
			CallSignal{Kind: EventCallInvitation, Recipient: "bob", CallType: "video", RoomName: "r1"},
		},
		{
			"call ended",
			`{"event":"call_ended","data":{"recipient":"alice","caller":"bob"}}`,
			CallSignal{Kind: EventCallEnded, Recipient: "alice", Caller: "bob"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
			if got.EventName() != tt.want.EventName() {
				t.Errorf("EventName() = %q, want %q", got.EventName(), tt.want.EventName())
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `hello`, ErrMalformed},
		{"missing event", `{"data":{}}`, ErrMalformed},
		{"unknown event", `{"event":"delete_everything","data":{}}`, ErrUnknownEvent},
		{"outbound event name", `{"event":"user_online","data":{"username":"x"}}`, ErrUnknownEvent},
		{"missing data", `{"event":"send_message"}`, ErrMalformed},
		{"null data", `{"event":"send_message","data":null}`, ErrMalformed},
		{"unknown field", `{"event":"send_message","data":{"recipient":"bob","content":"hi","sender":"eve"}}`, ErrMalformed},
		{"wrong type", `{"event":"send_message","data":{"recipient":42,"content":"hi"}}`, ErrMalformed},
		{"missing recipient", `{"event":"send_message","data":{"content":"hi"}}`, ErrMalformed},
		{"missing message id", `{"event":"mark_as_read","data":{}}`, ErrMalformed},
		{"typing without recipient", `{"event":"typing","data":{}}`, ErrMalformed},
		{"invitation bad call type", `{"event":"call_invitation","data":{"recipient":"bob","callType":"fax","roomName":"r"}}`, ErrMalformed},
		{"invitation without room", `{"event":"call_invitation","data":{"recipient":"bob","callType":"audio"}}`, ErrMalformed},
		{"accept without recipient", `{"event":"call_accepted","data":{}}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOutboundEncoding(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := &store.Message{ID: "m1", Sender: "alice", Recipient: "bob", Content: "hi", Type: store.TypeText, CreatedAt: created}

	raw, err := json.Marshal(MessageSent(m))
	if err != nil {
		t.Fatal(err)
	}
	var frame struct {
		Event string      `json:"event"`
		Data  MessageView `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Event != EventMessageSent {
		t.Errorf("event = %q, want %s", frame.Event, EventMessageSent)
	}
	if frame.Data.ID != "m1" || frame.Data.Sender != "alice" || frame.Data.MessageType != "text" || frame.Data.Delivered {
		t.Errorf("data = %+v", frame.Data)
	}
	if !frame.Data.CreatedAt.Equal(created) {
		t.Errorf("createdAt = %v, want %v", frame.Data.CreatedAt, created)
	}
}

func TestPresenceEncoding(t *testing.T) {
	online, _ := json.Marshal(UserOnline("alice"))
	if string(online) != `{"event":"user_online","data":{"username":"alice","isOnline":true}}` {
		t.Errorf("user_online = %s", online)
	}

	seen := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	offline, _ := json.Marshal(UserOffline("alice", seen))
	want := `{"event":"user_offline","data":{"username":"alice","isOnline":false,"lastSeen":"2026-05-01T10:00:00Z"}}`
	if string(offline) != want {
		t.Errorf("user_offline = %s, want %s", offline, want)
	}
}

func TestMessageErrorOmitsNilCause(t *testing.T) {
	raw, _ := json.Marshal(MessageError("bad request", nil))
	if strings.Contains(string(raw), `"error"`) {
		t.Errorf("message_error without cause = %s, want no error field", raw)
	}
	raw, _ = json.Marshal(MessageError("bad request", errors.New("boom")))
	if !strings.Contains(string(raw), `"error":"boom"`) {
		t.Errorf("message_error with cause = %s, want error field", raw)
	}
}

func TestCallEventKeepsKind(t *testing.T) {
	out := CallEvent(CallSignal{Kind: EventCallRejected, Caller: "bob", Recipient: "alice"})
	if out.Event != EventCallRejected {
		t.Errorf("event = %q, want %s", out.Event, EventCallRejected)
	}
}
