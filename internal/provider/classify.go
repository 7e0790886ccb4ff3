package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Class is the failure category the orchestrator branches on.
type Class int

// Failure classes.
const (
	// ClassFatal failures end orchestration immediately.
	ClassFatal Class = iota
	// ClassTransient failures (overload, quota) advance to the next candidate.
	ClassTransient
)

// String returns a lowercase label for the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Signature is one data-driven transient-failure rule. It matches when the
// error carries Status, or carries Code (case-insensitive), or its message
// contains Text (case-insensitive). Text is only consulted for errors
// without a structured status. Zero-valued fields never match.
type Signature struct {
	Name   string `yaml:"name" json:"name"`
	Status int    `yaml:"status,omitempty" json:"status,omitempty"`
	Code   string `yaml:"code,omitempty" json:"code,omitempty"`
	Text   string `yaml:"text,omitempty" json:"text,omitempty"`
}

// Validate reports whether the signature has at least one matcher.
func (s Signature) Validate() error {
	if s.Status == 0 && s.Code == "" && s.Text == "" {
		return fmt.Errorf("signature %q: one of status, code or text is required", s.Name)
	}
	if s.Status < 0 || s.Status > 999 {
		return fmt.Errorf("signature %q: status %d out of range", s.Name, s.Status)
	}
	return nil
}

func (s Signature) match(status int, code, msg string) bool {
	if s.Status != 0 && s.Status == status {
		return true
	}
	if s.Code != "" && strings.EqualFold(s.Code, code) {
		return true
	}
	if status != 0 {
		return false
	}
	return s.Text != "" && strings.Contains(msg, strings.ToLower(s.Text))
}

// DefaultSignatures returns the built-in overload and quota vocabulary.
func DefaultSignatures() []Signature {
	return []Signature{
		{Name: "http-429", Status: 429},
		{Name: "http-503", Status: 503},
		{Name: "resource-exhausted", Code: "RESOURCE_EXHAUSTED"},
		{Name: "unavailable", Code: "UNAVAILABLE"},
		{Name: "text-429", Text: "429"},
		{Name: "text-503", Text: "503"},
		{Name: "text-resource-exhausted", Text: "RESOURCE_EXHAUSTED"},
		{Name: "too-many-requests", Text: "too many requests"},
		{Name: "service-unavailable", Text: "service unavailable"},
		{Name: "overloaded", Text: "overloaded"},
	}
}

// Classifier maps provider errors to a Class using a signature table.
// It is immutable and safe for concurrent use.
type Classifier struct {
	signatures []Signature
}

// NewClassifier returns a classifier over DefaultSignatures plus extra.
func NewClassifier(extra ...Signature) *Classifier {
	return &Classifier{signatures: append(DefaultSignatures(), extra...)}
}

// Signatures returns a copy of the classifier's rule table.
func (c *Classifier) Signatures() []Signature {
	return slices.Clone(c.signatures)
}

// Classify returns ClassTransient when err is a rate limit or overload
// signal and ClassFatal for everything else, including nil, context
// cancellation, rejected credentials and unrouted models. A StatusError
// with a status is judged by its status and code only.
func (c *Classifier) Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrOverloaded) {
		return ClassTransient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrUnknownModel) {
		return ClassFatal
	}

	var (
		status int
		code   string
	)
	var se *StatusError
	if errors.As(err, &se) {
		status, code = se.Status, se.Code
	}
	msg := strings.ToLower(err.Error())

	for _, s := range c.signatures {
		if s.match(status, code, msg) {
			return ClassTransient
		}
	}
	return ClassFatal
}

var defaultClassifier = NewClassifier()

// Classify classifies err with the default signature table.
func Classify(err error) Class {
	return defaultClassifier.Classify(err)
}

// IsRetryable reports whether err is transient under the default table.
func IsRetryable(err error) bool {
	return Classify(err) == ClassTransient
}
