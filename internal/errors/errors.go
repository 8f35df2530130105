// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines sentinel errors for consistent error handling across the application.
// Every failure surfaced by the search client wraps exactly one of the kinds below so the
// CLI can map it to an exit code with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for consistent error handling and exit code mapping
var (
	// ErrAuth indicates the login was rejected or no session key came back.
	// Maps to exit code 2.
	ErrAuth = errors.New("authentication failed")

	// ErrSubmission indicates the search job could not be created.
	ErrSubmission = errors.New("search job submission failed")

	// ErrPoll indicates the job status endpoint returned a response shape that
	// cannot be recovered from. Maps to exit code 4.
	ErrPoll = errors.New("unexpected job status response")

	// ErrJobFailed indicates the job reached the FAILED dispatch state.
	// Maps to exit code 4.
	ErrJobFailed = errors.New("search job failed")

	// ErrFetch indicates a non-success response or unparseable body while
	// counting or paging results.
	ErrFetch = errors.New("failed to fetch results")

	// ErrExportExhausted indicates every raw export strategy failed.
	// Maps to exit code 5.
	ErrExportExhausted = errors.New("raw export failed")

	// ErrNetworkFailure indicates a network connection problem.
	// Maps to exit code 3.
	ErrNetworkFailure = errors.New("network connection failed")

	// ErrInvalidConfig indicates missing or inconsistent configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// maxBodyPreview bounds how much of a response body is kept in error messages.
const maxBodyPreview = 512

// APIError carries the raw response of a failed API call alongside the
// sentinel kind it belongs to.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Kind       error
}

// NewAPIError builds an APIError, trimming the body to a readable preview.
func NewAPIError(kind error, op string, status int, body []byte) *APIError {
	return &APIError{
		Op:         op,
		StatusCode: status,
		Body:       Preview(body),
		Kind:       kind,
	}
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, " (%v)", e.Kind)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Kind }

// Preview returns at most maxBodyPreview bytes of body as a trimmed string.
func Preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyPreview {
		return s[:maxBodyPreview] + "..."
	}
	return s
}

// TierAttempt records the outcome of one raw export strategy.
type TierAttempt struct {
	Tier       int
	Name       string
	StatusCode int
	Reason     string
}

// ExportExhaustedError is returned when all raw export strategies failed.
// It keeps enough detail to tell the user why the query is suspected to be
// incompatible with raw output.
type ExportExhaustedError struct {
	Attempts       []TierAttempt
	Transforming   bool
	Query          string
	SuggestedQuery string
}

func (e *ExportExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d raw export methods failed", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; method %d (%s): %s", a.Tier, a.Name, a.Reason)
	}
	if e.Transforming {
		fmt.Fprintf(&b, "; query contains transforming commands, use csv or json output or try: %s", e.SuggestedQuery)
	}
	return b.String()
}

func (e *ExportExhaustedError) Unwrap() error { return ErrExportExhausted }
