package realtime

import "encoding/json"

// Event names carried in Envelope.Event.
const (
	EventSubmitMessage   = "submit-message"
	EventSignalTyping    = "signal-typing"
	EventSubmitAck       = "submit-ack"
	EventSubmitError     = "submit-error"
	EventMessageReceived = "message-received"
	EventTypingBroadcast = "typing-broadcast"
)

// failedToSend is the only detail a submitter ever sees about a failure.
const failedToSend = "Failed to send message"

// MaxThreadIDLen bounds the opaque thread token clients may attach.
const MaxThreadIDLen = 64

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SubmitPayload is the data of a submit-message frame.  Body is a pointer
// so a missing body is rejected while an empty one is stored.
type SubmitPayload struct {
	Body      *string `json:"body"`
	ThreadID  *string `json:"threadId,omitempty"`
	ReplyToID *string `json:"replyToId,omitempty"`
	ImageRef  *string `json:"imageRef,omitempty"`
}

type Ack struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type SubmitError struct {
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func mustEncode(event string, data any) []byte {
	b, err := encode(event, data)
	if err != nil {
		panic(err)
	}
	return b
}
