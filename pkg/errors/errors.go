// Package errors classifies failures as transient or terminal so callers
// can decide whether an operation is worth repeating.
package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Class is the retry classification of an error.
type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

// Retryable is implemented by errors that know whether they can be retried.
type Retryable interface {
	IsRetryable() bool
}

type classifiedError struct {
	err   error
	class Class
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) Unwrap() error { return e.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient}
}

// Terminal marks err as not worth retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal}
}

var transientTokens = []string{
	"timeout",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"too many requests",
	"eof",
}

// Classify returns the retry class of err.
func Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return marked.class
	}

	var r Retryable
	if errors.As(err, &r) {
		if r.IsRetryable() {
			return ClassTransient
		}
		return ClassTerminal
	}

	if errors.Is(err, context.Canceled) {
		return ClassTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	lower := strings.ToLower(err.Error())
	for _, token := range transientTokens {
		if strings.Contains(lower, token) {
			return ClassTransient
		}
	}
	return ClassTerminal
}

// ShouldRetry reports whether err is transient.
func ShouldRetry(err error) bool {
	return Classify(err) == ClassTransient
}
