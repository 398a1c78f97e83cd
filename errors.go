package phrasebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyText is returned when the text is empty after trimming.
	ErrEmptyText = errors.New("phrasebook: empty text")

	// ErrUnknownProvider is returned for provider IDs that are not registered.
	ErrUnknownProvider = errors.New("phrasebook: unknown provider")

	// ErrNoProviders is returned when an orchestrator has nothing to try.
	ErrNoProviders = errors.New("phrasebook: no providers configured")

	// ErrUnsupportedLanguagePair is returned for pairs outside the configured one.
	ErrUnsupportedLanguagePair = errors.New("phrasebook: unsupported language pair")
)

// Outcome classifies a single provider attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeQuotaExceeded
	OutcomeAuthError
	OutcomeNetworkError
	OutcomeTimeout
	OutcomeUnsupported
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:       "success",
	OutcomeQuotaExceeded: "quota_exceeded",
	OutcomeAuthError:     "auth_error",
	OutcomeNetworkError:  "network_error",
	OutcomeTimeout:       "timeout",
	OutcomeUnsupported:   "unsupported",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ProviderError is a failed provider attempt expressed in the shared outcome
// vocabulary.
type ProviderError struct {
	Provider string
	Kind     Outcome
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider string, kind Outcome, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: message, Cause: cause}
}

// OutcomeOf classifies err. A nil error is a success, deadline errors are
// timeouts and anything not already classified is treated as a network error.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeNetworkError
}

// Attempt is the last outcome observed for one provider during a resolve.
type Attempt struct {
	ProviderID string  `json:"provider_id"`
	Outcome    Outcome `json:"outcome"`
	Err        error   `json:"-"`
}

// AllProvidersExhaustedError is returned when no provider in the order
// produced a translation. Under a correct configuration the offline provider
// makes this unreachable.
type AllProvidersExhaustedError struct {
	Attempts []Attempt
}

func (e *AllProvidersExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.ProviderID + "=" + a.Outcome.String()
	}
	return "all providers exhausted: " + strings.Join(parts, ", ")
}

// Unwrap exposes the individual attempt errors to errors.Is and errors.As.
func (e *AllProvidersExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// CacheError indicates a cache operation failure.
type CacheError struct {
	Op    string
	Cause error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache error: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("cache error: %s", e.Op)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// QuotaError indicates a quota tracker failure.
type QuotaError struct {
	Provider string
	Op       string
	Cause    error
}

func (e *QuotaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("quota error (%s): %s: %v", e.Provider, e.Op, e.Cause)
	}
	return fmt.Sprintf("quota error (%s): %s", e.Provider, e.Op)
}

func (e *QuotaError) Unwrap() error {
	return e.Cause
}
