package passkey

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Audit event types emitted by the ceremony flows.
const (
	auditEventRegistrationBegin    = "passkey.registration.begin"
	auditEventRegistrationSuccess  = "passkey.registration.success"
	auditEventRegistrationFailure  = "passkey.registration.failure"
	auditEventAuthenticationBegin  = "passkey.authentication.begin"
	auditEventAuthenticationOK     = "passkey.authentication.success"
	auditEventAuthenticationFailed = "passkey.authentication.failure"
	auditEventCounterSuspicious    = "passkey.counter.suspicious"
)

// AuditEvent is one security-relevant ceremony outcome.
type AuditEvent struct {
	EventID      string            `json:"event_id"`
	Timestamp    time.Time         `json:"timestamp"`
	EventType    string            `json:"event_type"`
	UserID       string            `json:"user_id,omitempty"`
	CredentialID string            `json:"credential_id,omitempty"`
	IP           string            `json:"ip,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
// Implementations must be safe for concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements [AuditSink].
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for the caller to
// drain.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

// Emit implements [AuditSink].
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the event channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a JSONWriterSink wrapping w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements [AuditSink].
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

func newAuditEvent(eventType, userID, credentialID, ip string, outcome error) AuditEvent {
	event := AuditEvent{
		EventID:      uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		UserID:       userID,
		CredentialID: credentialID,
		IP:           ip,
		Success:      outcome == nil,
	}
	if outcome != nil {
		event.Error = outcome.Error()
	}
	return event
}
