package events

import (
	"context"
	"time"
)

const (
	TypeTurnCommitted   = "turn.committed"
	TypeDocumentIndexed = "document.indexed"
	TypeSessionCleaned  = "session.cleaned"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the dotted event code, e.g. "document.indexed".
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Envelope is the wire form of an event.
type Envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data"`
}

func ToEnvelope(e Event) Envelope {
	return Envelope{Type: e.EventType(), OccurredAt: e.Timestamp(), Data: e.Payload()}
}

func (e Envelope) Event() BaseEvent {
	return BaseEvent{Type: e.Type, Data: e.Data, OccurredAt: e.OccurredAt}
}

// Publisher delivers events to whoever listens. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// NoopPublisher drops every event. Used when no broker is configured or reachable.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close()                               {}

func TurnCommitted(userID, sessionID, qaID string, answerLength int) BaseEvent {
	return BaseEvent{
		Type: TypeTurnCommitted,
		Data: map[string]interface{}{
			"user_id":       userID,
			"session_id":    sessionID,
			"qa_id":         qaID,
			"answer_length": answerLength,
		},
		OccurredAt: time.Now(),
	}
}

// DocumentIndexed reports the end of an ingestion, successful or not.
func DocumentIndexed(userID, sessionID, filePath string, chunks, uploadOrder int, outcome string, ingestErr error) BaseEvent {
	data := map[string]interface{}{
		"user_id":      userID,
		"session_id":   sessionID,
		"file_path":    filePath,
		"chunks":       chunks,
		"upload_order": uploadOrder,
		"outcome":      outcome,
	}
	if ingestErr != nil {
		data["error"] = ingestErr.Error()
	}
	return BaseEvent{Type: TypeDocumentIndexed, Data: data, OccurredAt: time.Now()}
}

func SessionCleaned(sessionID string, chunks, turns int64) BaseEvent {
	return BaseEvent{
		Type: TypeSessionCleaned,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"chunks":     chunks,
			"turns":      turns,
		},
		OccurredAt: time.Now(),
	}
}
