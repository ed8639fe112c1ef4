package cachemirror

import "errors"

// ErrNotFound is returned by GetObject and GetCursor when the key is absent,
// the cachemirror equivalent of the redis.Nil sentinel public-api-service
// checks for in sdk_handler.go.
var ErrNotFound = errors.New("cachemirror: not found")

// Kind classifies a cache failure as transient (reconnect likely to fix it)
// or permanent (retrying the same operation will not help), per spec.md
// §4.1's failure model.
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
)

// Error wraps a cache failure with its Kind so callers can branch with
// errors.As instead of string matching, mirroring go-core's pattern of
// typed sentinel errors wrapped with %w.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return "cachemirror: " + e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func transientErr(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func permanentErr(op string, err error) error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// IsTransient reports whether err (or a wrapped cause) is a transient cache
// failure.
func IsTransient(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == KindTransient
	}
	return false
}
