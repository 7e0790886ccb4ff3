// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/flemzord/codeproxy/internal/security"
)

// AuditRecorder collects audit events in memory.
type AuditRecorder struct {
	logger *security.AuditLogger

	mu     sync.Mutex
	events []security.AuditEvent
}

// NewAuditRecorder returns a recorder whose Logger feeds it.
func NewAuditRecorder() *AuditRecorder {
	rec := &AuditRecorder{}
	rec.logger = security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			rec.mu.Lock()
			rec.events = append(rec.events, e)
			rec.mu.Unlock()
		},
	})
	return rec
}

// Logger returns the audit logger to inject into the code under test.
func (r *AuditRecorder) Logger() *security.AuditLogger { return r.logger }

// Events returns a copy of the recorded events.
func (r *AuditRecorder) Events() []security.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]security.AuditEvent(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *AuditRecorder) OfType(t security.EventType) []security.AuditEvent {
	var out []security.AuditEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// NewCredentialStore returns a store holding the given name/value pairs.
// It panics on an odd number of arguments.
func NewCredentialStore(kvs ...string) *security.CredentialStore {
	if len(kvs)%2 != 0 {
		panic("securitytest: NewCredentialStore requires name/value pairs")
	}
	store := security.NewCredentialStore()
	for i := 0; i < len(kvs); i += 2 {
		store.Set(kvs[i], kvs[i+1])
	}
	return store
}
