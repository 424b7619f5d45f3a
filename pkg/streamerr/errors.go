// Package streamerr defines the error taxonomy shared by the streaming
// client and server. Every failure surfaced across a component boundary is
// classified with a Kind so callers can branch on it without string matching.
package streamerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindIO
	KindSerialization
	KindIngest
	KindWebRTC
	KindCodec
	KindCapture
	KindConfig
	KindNetwork
	KindAuth
	KindStreamNotFound
	KindInvalidStreamKey
	KindConnectionClosed
	KindTimeout
)

var kindNames = map[Kind]string{
	KindInternal:         "internal",
	KindIO:               "io",
	KindSerialization:    "serialization",
	KindIngest:           "ingest",
	KindWebRTC:           "webrtc",
	KindCodec:            "codec",
	KindCapture:          "capture",
	KindConfig:           "config",
	KindNetwork:          "network",
	KindAuth:             "auth",
	KindStreamNotFound:   "stream_not_found",
	KindInvalidStreamKey: "invalid_stream_key",
	KindConnectionClosed: "connection_closed",
	KindTimeout:          "timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "internal"
}

// Error is a classified error. Err is optional and preserved for Unwrap.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error from a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinel errors for conditions that carry no message payload.
var (
	ErrConnectionClosed = &Error{Kind: KindConnectionClosed, Msg: "connection closed"}
	ErrTimeout          = &Error{Kind: KindTimeout, Msg: "timeout"}
)

// KindOf extracts the Kind from err, unwrapping as needed.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// HTTPStatus maps an error to the status class its kind calls for.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindStreamNotFound:
		return http.StatusNotFound
	case KindAuth, KindInvalidStreamKey:
		return http.StatusUnauthorized
	case KindSerialization, KindWebRTC:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
