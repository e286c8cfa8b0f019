package rag

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a collaborator failure.
type ErrorKind string

const (
	// KindUnavailable covers missing credentials, network failures and
	// backends that were never configured.
	KindUnavailable ErrorKind = "unavailable"
	// KindMalformed covers responses whose shape could not be interpreted.
	KindMalformed ErrorKind = "malformed"
	// KindInvalidInput covers caller input that had to be coerced.
	KindInvalidInput ErrorKind = "invalid_input"
)

// AdapterError is returned by collaborator adapters (retrievers, catalog,
// generator). The pipeline turns it into a degraded default and a diagnostic.
type AdapterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Unavailable wraps err as a [KindUnavailable] adapter error for op.
func Unavailable(op string, err error) error {
	return &AdapterError{Kind: KindUnavailable, Op: op, Err: err}
}

// Malformed wraps err as a [KindMalformed] adapter error for op.
func Malformed(op string, err error) error {
	return &AdapterError{Kind: KindMalformed, Op: op, Err: err}
}

// KindOf returns the kind of the first AdapterError in err's chain.
// Errors that are not adapter errors are reported as unavailable.
func KindOf(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnavailable
}
