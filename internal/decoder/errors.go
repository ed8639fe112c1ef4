package decoder

import "fmt"

// ErrorKind classifies a decode failure per spec.md §4.3.
type ErrorKind string

const (
	KindInvalidJSON         ErrorKind = "invalid_json"
	KindMissingField        ErrorKind = "missing_field"
	KindInvalidType         ErrorKind = "invalid_type"
	KindInvalidValue        ErrorKind = "invalid_value"
	KindUnknownMessageType  ErrorKind = "unknown_message_type"
)

// FieldError is the typed error every decode failure is wrapped in. Field
// carries a JSON-path-like string (e.g. "payload.objectInstance") so callers
// can log the offending location, per §4.3 "Errors ... carry the offending
// field path for logging".
//
// A FieldError is always a permanent failure of the single event it was
// raised for: the event consumer acks-and-skips it (§4.3, §7) rather than
// retrying, because re-decoding the same bytes will never succeed.
type FieldError struct {
	Kind  ErrorKind
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, e.Msg)
}

func newFieldError(kind ErrorKind, field, msg string) *FieldError {
	return &FieldError{Kind: kind, Field: field, Msg: msg}
}
