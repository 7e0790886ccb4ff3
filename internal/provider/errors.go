package provider

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit or quota response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrOverloaded indicates the provider is temporarily unable to serve.
	ErrOverloaded = errors.New("provider overloaded")

	// ErrAuthentication indicates the provider rejected the credentials.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrAllProviders indicates every candidate model has been exhausted.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider or model candidate is available.
	ErrNoProvider = errors.New("no provider configured")

	// ErrUnknownModel indicates no configured backend serves the model.
	ErrUnknownModel = errors.New("unknown model")
)

// StatusError is the structured failure returned by provider adapters.
// Status is the HTTP-like status code (0 when unknown) and Code the
// provider's symbolic status (e.g. "RESOURCE_EXHAUSTED").
type StatusError struct {
	Provider string
	Status   int
	Code     string
	Message  string
	Err      error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	var label string
	switch {
	case e.Status != 0 && e.Code != "":
		label = strconv.Itoa(e.Status) + " " + e.Code
	case e.Status != 0:
		label = strconv.Itoa(e.Status)
	default:
		label = e.Code
	}
	if label == "" {
		return fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, label, msg)
}

func (e *StatusError) Unwrap() error { return e.Err }
