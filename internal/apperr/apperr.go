package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrSuspended is returned for any operation attempted after the attempt was
// suspended. It is produced locally, without a network call.
var ErrSuspended = errors.New("attempt suspended")

// ErrFinalizeInProgress rejects a second finalize while one is running.
var ErrFinalizeInProgress = errors.New("finalize already in progress")

// CodeAttemptSuspended is the API error code for a suspended attempt.
const CodeAttemptSuspended = "ATTEMPT_SUSPENDED"

// APIError is a non-2xx answer from the rendiciones API.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: api error (%d)", e.Op, e.Status)
}

// ConnectivityError is a request that never produced an HTTP status: a
// timeout, a refused connection or a dropped socket.
type ConnectivityError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *ConnectivityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// NewConnectivityError classifies a transport failure.
func NewConnectivityError(op string, err error) *ConnectivityError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	return &ConnectivityError{Op: op, Timeout: timeout, Err: err}
}

// IsSuspended recognizes the suspended shape: the local sentinel, the
// dedicated API code, or an API message mentioning suspension.
func IsSuspended(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSuspended) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Code == CodeAttemptSuspended {
			return true
		}
		return strings.Contains(strings.ToLower(ae.Message), "suspend")
	}
	return false
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// IsConnectivity reports whether err is a transport failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// UserMessage extracts the message to surface in the view model. API
// messages are shown verbatim; everything else falls back.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var ae *APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if IsConnectivity(err) {
		return "Sin conexión con el servidor. Intenta nuevamente."
	}
	var ue interface{ UserMessage() string }
	if errors.As(err, &ue) {
		if msg := ue.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
