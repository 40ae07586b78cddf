package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/entity-extractor/internal/model"
)

// TransportError wraps a network-level failure (connection reset, timeout).
// Always retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a transport failure.
func NewTransportError(err error) *TransportError {
	return &TransportError{Err: err}
}

// ServiceError wraps a rejection from the remote service. It is retryable
// unless Fatal is set, in which case retrying is guaranteed useless (for
// example, invalid credentials) and the whole run should stop.
type ServiceError struct {
	Err        error
	StatusCode int
	Fatal      bool
}

func (e *ServiceError) Error() string {
	prefix := "service"
	if e.Fatal {
		prefix = "service (fatal)"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", prefix, e.StatusCode, e.Err.Error())
	}
	return prefix + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err as a retryable service rejection.
func NewServiceError(err error, statusCode int) *ServiceError {
	return &ServiceError{Err: err, StatusCode: statusCode}
}

// NewFatalServiceError wraps err as a non-retryable service rejection.
func NewFatalServiceError(err error, statusCode int) *ServiceError {
	return &ServiceError{Err: err, StatusCode: statusCode, Fatal: true}
}

// ExhaustedRetriesError is returned when the retry budget is consumed. It
// carries the last underlying error and the total number of attempts made.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted retries after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

// IsFatal reports whether err (or any error in its chain) is a fatal
// ServiceError.
func IsFatal(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Fatal
}

// IsRetryable reports whether another attempt could succeed. Fatal service
// errors and caller cancellation are never retried; everything else,
// including unclassified errors, is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Classify returns the tagged error kind for err. Unclassified errors are
// reported as transport failures when they look like network problems and
// as service failures otherwise.
func Classify(err error) model.ErrorKind {
	if err == nil {
		return model.ErrorKindNone
	}
	var ex *ExhaustedRetriesError
	if errors.As(err, &ex) {
		return model.ErrorKindExhausted
	}
	if errors.Is(err, context.Canceled) {
		return model.ErrorKindCancelled
	}
	var te *TransportError
	if errors.As(err, &te) {
		return model.ErrorKindTransport
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return model.ErrorKindService
	}
	if IsNetworkError(err) {
		return model.ErrorKindTransport
	}
	return model.ErrorKindService
}

// IsNetworkError returns true if err matches common network failure patterns
// (timeouts, connection resets, DNS failures).
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded
		return true
	default:
		return false
	}
}

// IsFatalHTTPStatus returns true for statuses where retrying cannot help
// because the caller itself is rejected.
func IsFatalHTTPStatus(statusCode int) bool {
	return statusCode == 401 || statusCode == 403
}
