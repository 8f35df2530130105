package apierror

import (
	"context"
	"errors"
	"net"
	"strings"
)

const (
	// sessionExpiredText appears in the messages array when the session key
	// is no longer accepted.
	sessionExpiredText = "not properly authenticated"

	// emptySearchText is returned by the export endpoints instead of an error
	// status when nothing could be exported.
	emptySearchText = "Empty search"
)

// Message is one entry of the "messages" array that accompanies most API
// responses.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Inspector provides methods for analyzing search API responses and errors.
type Inspector interface {
	// IsSessionExpired returns true if any message reports that the request
	// was not properly authenticated.
	IsSessionExpired(messages []Message) bool

	// IsEmptyExport returns true if an export body carries no usable content.
	IsEmptyExport(body []byte) bool

	// IsNetworkError returns true if the error represents a network connectivity error.
	IsNetworkError(err error) bool
}

// SearchAPIInspector implements the Inspector interface for the search job API.
type SearchAPIInspector struct{}

// NewInspector creates a new SearchAPIInspector.
func NewInspector() Inspector {
	return &SearchAPIInspector{}
}

// IsSessionExpired checks the message texts case-insensitively.
func (i *SearchAPIInspector) IsSessionExpired(messages []Message) bool {
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Text), sessionExpiredText) {
			return true
		}
	}
	return false
}

// IsEmptyExport reports blank bodies and bodies carrying the empty-search sentinel.
func (i *SearchAPIInspector) IsEmptyExport(body []byte) bool {
	s := string(body)
	return strings.TrimSpace(s) == "" || strings.Contains(s, emptySearchText)
}

// IsNetworkError checks if the error is a network connectivity error.
func (i *SearchAPIInspector) IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	// A cancelled request was stopped by the caller, e.g. on interrupt.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "tls handshake") ||
		strings.Contains(errStr, "network is unreachable")
}
