package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/sells-group/entity-extractor/internal/model"
)

func TestIsFatal(t *testing.T) {
	fatal := NewFatalServiceError(errors.New("invalid credentials"), 401)
	if !IsFatal(fatal) {
		t.Error("expected fatal service error to be fatal")
	}
	if !IsFatal(eris.Wrap(fatal, "anthropic: create message")) {
		t.Error("expected eris-wrapped fatal error to be fatal")
	}
	if IsFatal(NewServiceError(errors.New("overloaded"), 529)) {
		t.Error("retryable service error must not be fatal")
	}
	if IsFatal(nil) {
		t.Error("nil error is not fatal")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", NewTransportError(errors.New("reset")), true},
		{"service", NewServiceError(errors.New("rate limited"), 429), true},
		{"fatal service", NewFatalServiceError(errors.New("forbidden"), 403), false},
		{"unclassified", errors.New("something odd"), true},
		{"cancelled", fmt.Errorf("call: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrorKind
	}{
		{"nil", nil, model.ErrorKindNone},
		{"transport", NewTransportError(errors.New("x")), model.ErrorKindTransport},
		{"service", NewServiceError(errors.New("x"), 500), model.ErrorKindService},
		{"exhausted", &ExhaustedRetriesError{Attempts: 3, Last: NewTransportError(errors.New("x"))}, model.ErrorKindExhausted},
		{"cancelled", context.Canceled, model.ErrorKindCancelled},
		{"deadline", context.DeadlineExceeded, model.ErrorKindTransport},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), model.ErrorKindTransport},
		{"unknown", errors.New("bad request body"), model.ErrorKindService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsNetworkError(t *testing.T) {
	if !IsNetworkError(timeoutErr{}) {
		t.Error("net timeout should be a network error")
	}
	if !IsNetworkError(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)) {
		t.Error("ECONNREFUSED should be a network error")
	}
	if !IsNetworkError(errors.New("read tcp 10.0.0.1:443: i/o timeout")) {
		t.Error("i/o timeout string should be a network error")
	}
	if IsNetworkError(errors.New("invalid json")) {
		t.Error("invalid json is not a network error")
	}
	if IsNetworkError(nil) {
		t.Error("nil is not a network error")
	}
}

func TestHTTPStatusHelpers(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
	if !IsFatalHTTPStatus(401) || !IsFatalHTTPStatus(403) || IsFatalHTTPStatus(429) {
		t.Error("unexpected fatal status classification")
	}
}

func TestErrorMessages(t *testing.T) {
	se := NewServiceError(errors.New("overloaded"), 529)
	if se.Error() != "service: status 529: overloaded" {
		t.Errorf("unexpected message: %s", se.Error())
	}
	fe := NewFatalServiceError(errors.New("bad key"), 0)
	if fe.Error() != "service (fatal): bad key" {
		t.Errorf("unexpected message: %s", fe.Error())
	}
	ex := &ExhaustedRetriesError{Attempts: 3, Last: NewTransportError(errors.New("reset"))}
	if ex.Error() != "exhausted retries after 3 attempts: transport: reset" {
		t.Errorf("unexpected message: %s", ex.Error())
	}
}
