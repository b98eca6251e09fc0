// Package apperr defines the error taxonomy shared by the registry, backend, engine,
// instance table and manager. The HTTP layer maps a Kind onto a status code and only
// ever exposes the kind and a human-readable message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindModelNotFound
	KindLoadFailure
	KindEncodingFailure
	KindDecodingFailure
	KindInferenceBackendFailure
	KindRegistryFailure
	KindConcurrencyTimeout
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindModelNotFound:
		return "not_found"
	case KindLoadFailure:
		return "load_failure"
	case KindEncodingFailure:
		return "encoding_failure"
	case KindDecodingFailure:
		return "decoding_failure"
	case KindInferenceBackendFailure:
		return "inference_failure"
	case KindRegistryFailure:
		return "registry_failure"
	case KindConcurrencyTimeout:
		return "busy"
	default:
		return "internal"
	}
}

// Error is the concrete error type carried across package boundaries.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "instance.ensure".
	Op string
	// Msg is safe to show to API callers.
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return e.Msg + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// BadRequest reports a malformed request.
func BadRequest(format string, args ...any) error {
	return E(KindBadRequest, "", fmt.Sprintf(format, args...), nil)
}

// ModelNotFound reports an identifier absent from the registry or the table.
func ModelNotFound(id string) error {
	return E(KindModelNotFound, "", "model not found: "+id, nil)
}

// LoadFailure reports that a model could not be materialized.
func LoadFailure(id string, err error) error {
	return E(KindLoadFailure, "", "failed to load model "+id, err)
}

// EncodingFailure reports that the tokenizer rejected the input.
func EncodingFailure(err error) error {
	return E(KindEncodingFailure, "", "failed to encode prompt", err)
}

// DecodingFailure reports that the tokenizer could not render generated ids.
func DecodingFailure(err error) error {
	return E(KindDecodingFailure, "", "failed to decode generated tokens", err)
}

// BackendFailure reports a forward-pass error during generation.
func BackendFailure(err error) error {
	return E(KindInferenceBackendFailure, "", "inference backend failure", err)
}

// RegistryFailure reports an unavailable or failing registry store.
func RegistryFailure(op string, err error) error {
	return E(KindRegistryFailure, op, "registry unavailable", err)
}

// Busy reports that exclusive access to a model was not granted in time.
func Busy(id string) error {
	return E(KindConcurrencyTimeout, "", "model busy: "+id, nil)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
