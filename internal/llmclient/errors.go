package llmclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	json "github.com/json-iterator/go"
)

// ErrorKind classifies gateway failures for callers and for the retry policy.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindAuthentication ErrorKind = "authentication"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindRateLimited    ErrorKind = "rate_limited"
	KindTransient      ErrorKind = "transient"
	KindRejected       ErrorKind = "rejected"
)

// GatewayError is the error type returned by every provider client.
type GatewayError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	// Message is the provider's own error text when one could be recovered.
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// KindOf returns the kind of the first GatewayError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var gw *GatewayError
	if errors.As(err, &gw) {
		return gw.Kind
	}
	return ""
}

func configurationError(provider, msg string) *GatewayError {
	return &GatewayError{Kind: KindConfiguration, Provider: provider, Message: msg}
}

// classifyStatus maps a non-2xx status to a kind. Only 429 is retryable;
// server errors fail immediately as rejections.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	default:
		return KindRejected
	}
}

// statusError builds the error for a non-2xx response. The provider's
// error.message is surfaced when the body carries one.
func statusError(provider string, status int, body []byte) *GatewayError {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &GatewayError{
		Kind:       classifyStatus(status),
		Provider:   provider,
		StatusCode: status,
		Message:    msg,
	}
}

func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Error.Message)
}

// transportError classifies a failure that produced no HTTP response.
// Connection resets, refusals, DNS misses and timeouts are transient.
func transportError(provider string, err error) *GatewayError {
	kind := KindRejected
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &dnsErr):
		kind = KindTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindTransient
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTransient
	}
	return &GatewayError{Kind: kind, Provider: provider, Err: err}
}
