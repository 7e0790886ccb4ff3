package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// AuditServiceName is the AppContext service key of the AuditLogger.
const AuditServiceName = "security.audit"

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventGeneration   EventType = "generation"
	EventAuthFailure  EventType = "auth_failure"
	EventConfigReload EventType = "config_reload"
)

// AuditEvent is a single audit log entry. Prompts are never recorded, only
// their length.
type AuditEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	Type         EventType         `json:"type"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Remote       string            `json:"remote,omitempty"`
	Model        string            `json:"model,omitempty"`
	Outcome      string            `json:"outcome,omitempty"`
	Attempts     int               `json:"attempts,omitempty"`
	PromptLength int               `json:"prompt_length,omitempty"`
	Detail       string            `json:"detail,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to Detail and Metadata values before writing.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL with optional redaction.
// A nil *AuditLogger discards every event.
type AuditLogger struct {
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log writes an audit event. The timestamp is set automatically and the
// caller's Metadata map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}
