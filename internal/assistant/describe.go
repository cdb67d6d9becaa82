package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/chartwise/internal/llmclient"
)

// Describe turns a pipeline error into a message fit for the popup.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrBusy):
		return "A request is already in progress. Please wait for it to finish."
	case errors.Is(err, ErrEmptyCommand):
		return "Please enter a command."
	case errors.Is(err, ErrConfiguration):
		return withDetail("Please check your API key in settings.", configurationDetail(err))
	case errors.Is(err, ErrContextUnavailable):
		return "Unable to extract page data. Please navigate to a supported page or refresh and try again."
	}

	var gw *llmclient.GatewayError
	errors.As(err, &gw)
	switch llmclient.KindOf(err) {
	case llmclient.KindConfiguration, llmclient.KindAuthentication:
		return withDetail("The model provider rejected the request. Please check your API key.", gatewayDetail(gw))
	case llmclient.KindRateLimited:
		return "The model provider is rate limiting requests. Please try again later."
	case llmclient.KindTransient:
		return "The model provider is temporarily unavailable. Please try again later."
	case llmclient.KindInvalidRequest:
		return withDetail("The model provider rejected the request. Please check the selected model.", gatewayDetail(gw))
	case llmclient.KindRejected:
		return withDetail("The model provider rejected the request.", gatewayDetail(gw))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out. Please try again later."
	}
	return "Something went wrong: " + err.Error()
}

// withDetail appends the underlying reason to a friendly message.
func withDetail(msg, detail string) string {
	if detail == "" {
		return msg
	}
	return msg + " (" + detail + ")"
}

// configurationDetail is the text wrapped after ErrConfiguration, e.g. the
// key format rule that failed.
func configurationDetail(err error) string {
	_, detail, _ := strings.Cut(err.Error(), ErrConfiguration.Error()+": ")
	return strings.TrimSpace(detail)
}

// gatewayDetail is the provider's own message, or the transport failure.
func gatewayDetail(gw *llmclient.GatewayError) string {
	switch {
	case gw == nil:
		return ""
	case gw.Message != "":
		return gw.Message
	case gw.Err != nil:
		return gw.Err.Error()
	}
	return ""
}

// Kind returns a short machine-readable category for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrEmptyCommand):
		return "empty_command"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrContextUnavailable):
		return "context_unavailable"
	}
	if kind := llmclient.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "internal"
}
