package provider

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// healthState represents the observed availability of a model.
type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // recent transient failure, backing off
	stateDead                 // too many consecutive transient failures
)

// String returns a human-readable label for the health state.
func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthServiceName is the AppContext service key of the shared HealthRegistry.
const HealthServiceName = "provider.health"

// HealthConfig controls health tracking behavior.
type HealthConfig struct {
	// InitialBackoff is the cooldown duration after the first failure.
	// Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration.
	// Default: 60s.
	MaxBackoff time.Duration

	// MaxFailures is the number of consecutive failures before the
	// model is reported dead. Default: 5.
	MaxFailures int
}

// defaults fills zero-value fields with sensible defaults.
func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
}

// healthTracker follows the availability of a single model with
// exponential backoff on consecutive failures.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange is called outside the lock whenever the health
	// state transitions.
	onStateChange func(from, to healthState)

	mu              sync.Mutex
	state           healthState
	failures        int
	currentBackoff  time.Duration
	cooldownExpires time.Time
	lastError       string
	lastSeen        time.Time

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{
		cfg:   cfg,
		state: stateHealthy,
		now:   time.Now,
	}
}

// IsAvailable reports whether the model is expected to accept requests.
// A model in cooldown becomes available once its backoff expires.
func (h *healthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.availableLocked()
}

func (h *healthTracker) availableLocked() bool {
	switch h.state {
	case stateHealthy:
		return true
	case stateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

// RecordSuccess resets the tracker to the healthy state.
func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = stateHealthy
	h.failures = 0
	h.currentBackoff = 0
	h.lastSeen = h.now()
	h.mu.Unlock()

	if prev != stateHealthy && h.onStateChange != nil {
		h.onStateChange(prev, stateHealthy)
	}
}

// RecordFailure moves the tracker to cooldown (with exponential backoff)
// or to dead after MaxFailures consecutive failures.
func (h *healthTracker) RecordFailure(msg string) {
	h.mu.Lock()
	prev := h.state
	h.failures++
	h.lastError = msg
	h.lastSeen = h.now()

	var newState healthState
	if h.failures >= h.cfg.MaxFailures {
		newState = stateDead
	} else {
		newState = stateCooldown
		if h.currentBackoff == 0 {
			h.currentBackoff = h.cfg.InitialBackoff
		} else {
			h.currentBackoff *= 2
		}
		if h.currentBackoff > h.cfg.MaxBackoff {
			h.currentBackoff = h.cfg.MaxBackoff
		}
		h.cooldownExpires = h.now().Add(h.currentBackoff)
	}
	h.state = newState
	h.mu.Unlock()

	if prev != newState && h.onStateChange != nil {
		h.onStateChange(prev, newState)
	}
}

// recordError notes a fatal failure without touching the backoff state.
func (h *healthTracker) recordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = msg
	h.lastSeen = h.now()
}

// State returns the current health state.
func (h *healthTracker) State() healthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Failures returns the current consecutive failure count.
func (h *healthTracker) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// CurrentBackoff returns the current backoff duration.
func (h *healthTracker) CurrentBackoff() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentBackoff
}

func (h *healthTracker) snapshot(model string) ModelHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	mh := ModelHealth{
		Model:     model,
		State:     h.state.String(),
		Available: h.availableLocked(),
		Failures:  h.failures,
		LastError: h.lastError,
		LastSeen:  h.lastSeen,
	}
	if h.state == stateCooldown {
		mh.CooldownUntil = h.cooldownExpires
	}
	return mh
}

// ModelHealth is a point-in-time view of one model's observed health.
type ModelHealth struct {
	Model         string    `json:"model"`
	State         string    `json:"state"`
	Available     bool      `json:"available"`
	Failures      int       `json:"failures"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
	LastSeen      time.Time `json:"last_seen,omitzero"`
}

// HealthRegistry observes generation attempts per model. It only reports:
// candidate selection never consults it.
type HealthRegistry struct {
	cfg HealthConfig

	// OnStateChange, when set, is called on every model state transition.
	OnStateChange func(model, from, to string)

	mu       sync.Mutex
	trackers map[string]*healthTracker

	now func() time.Time
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry(cfg HealthConfig) *HealthRegistry {
	return &HealthRegistry{
		cfg:      cfg,
		trackers: make(map[string]*healthTracker),
		now:      time.Now,
	}
}

func (r *HealthRegistry) tracker(model string) *healthTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.trackers[model]
	if !ok {
		h = newHealthTracker(r.cfg)
		h.now = r.now
		h.onStateChange = func(from, to healthState) {
			if r.OnStateChange != nil {
				r.OnStateChange(model, from.String(), to.String())
			}
		}
		r.trackers[model] = h
	}
	return h
}

// Observe records the result of one attempt against model. A nil err is a
// success. Transient failures feed the backoff; fatal ones are only noted.
func (r *HealthRegistry) Observe(model string, err error, class Class) {
	h := r.tracker(model)
	switch {
	case err == nil:
		h.RecordSuccess()
	case class == ClassTransient:
		h.RecordFailure(err.Error())
	default:
		h.recordError(err.Error())
	}
}

// Snapshot returns the health of every observed model, sorted by model ID.
func (r *HealthRegistry) Snapshot() []ModelHealth {
	r.mu.Lock()
	models := make(map[string]*healthTracker, len(r.trackers))
	for m, h := range r.trackers {
		models[m] = h
	}
	r.mu.Unlock()

	out := make([]ModelHealth, 0, len(models))
	for m, h := range models {
		out = append(out, h.snapshot(m))
	}
	slices.SortFunc(out, func(a, b ModelHealth) int { return cmp.Compare(a.Model, b.Model) })
	return out
}

// Degraded reports whether at least one model was observed and none of the
// observed models is currently available.
func (r *HealthRegistry) Degraded() bool {
	snap := r.Snapshot()
	if len(snap) == 0 {
		return false
	}
	for _, mh := range snap {
		if mh.Available {
			return false
		}
	}
	return true
}
