// Package stt defines the external speech-to-text capability consumed by
// the orchestrator, with explicit failure classification so retry policy
// is a visible decision rather than buried control flow.
package stt

import (
	"context"
	"errors"
	"fmt"

	"ai-call-insight-service/internal/models"
)

// ErrorKind classifies a transcription failure for the retry policy.
type ErrorKind string

const (
	// Transient failures (timeout, rate limit, upstream 5xx) are retried
	// with bounded backoff.
	Transient ErrorKind = "transient"
	// Terminal failures (auth error, malformed audio) are never retried.
	Terminal ErrorKind = "terminal"
)

// Error is a classified transcription failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transcription %s failure: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("transcription %s failure: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewTransient wraps err as a retryable failure.
func NewTransient(message string, err error) *Error {
	return &Error{Kind: Transient, Message: message, Cause: err}
}

// NewTerminal wraps err as a non-retryable failure.
func NewTerminal(message string, err error) *Error {
	return &Error{Kind: Terminal, Message: message, Cause: err}
}

// KindOf extracts the failure classification from an error chain.
// Unclassified errors (network hiccups, context deadline) are treated as
// transient so the retry budget gets a chance to absorb them.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Transient
}

// Result is one successful transcription: ordered segments plus the
// provider's full text.
type Result struct {
	Segments []models.Segment
	FullText string
	Language string
	Duration float64
}

// Transcriber is the remote speech-to-text capability. Implementations
// must honor ctx cancellation and deadlines; an exceeded deadline is a
// transient failure.
type Transcriber interface {
	// Transcribe converts audio bytes to ordered transcript segments.
	Transcribe(ctx context.Context, audio []byte, language string) (*Result, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
