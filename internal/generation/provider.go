// Package generation defines the contract with the external content
// generation provider and the classification of its failures.
//
// The pipeline never talks to a model API directly: it builds a Prompt,
// hands it to a Provider, and decodes the returned text into a JSON
// object. Providers are fallible and rate limited, so every error is
// classified as transient (worth retrying) or fatal.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
)

// Prompt is a single generation request.
type Prompt struct {
	System    string `json:"system"`
	User      string `json:"user"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Provider turns a prompt into raw model output.
type Provider interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, p Prompt) (string, error)

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// --- Errors ---

// ErrMalformedOutput means the provider answered but the answer could not
// be parsed into the expected structure. It is transient: a second sample
// usually parses.
var ErrMalformedOutput = apperr.New(apperr.CodeTransient, "malformed generation output")

// ProviderError is an HTTP-level failure reported by the provider.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider returned %d", e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the status code is worth retrying.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == 408 || e.StatusCode == 409 || e.StatusCode == 429 || e.StatusCode >= 500
}

// Code implements apperr.Coder.
func (e *ProviderError) Code() apperr.Code {
	if e.Transient() {
		return apperr.CodeTransient
	}
	return apperr.CodeProvider
}

// IsTransient classifies err for the retry executor. Timeouts, malformed
// output, rate limits, 5xx responses and network failures are transient;
// everything else (bad request, auth failures, missing prerequisites,
// cancellation) is fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrMalformedOutput) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
