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

package splunk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sirseerhq/searchdl/internal/apierror"
	sderrors "github.com/sirseerhq/searchdl/internal/errors"
	"github.com/sirseerhq/searchdl/pkg/version"
)

const loginPath = "/services/auth/login"

// Operation names reported to observers and used in error messages.
const (
	opLogin          = "login"
	opSubmitJob      = "submit_job"
	opPollJob        = "poll_job"
	opJobInfo        = "job_info"
	opFetchResults   = "fetch_results"
	opExportBySID    = "export_by_sid"
	opResultsRaw     = "results_raw"
	opExportBySearch = "export_by_search"
)

// Credentials are the username and password used for every login, including
// the re-logins triggered by an expired session.
type Credentials struct {
	Username string
	Password string
}

// SessionConfig configures the HTTP layer shared by all sessions of a manager.
type SessionConfig struct {
	// InsecureSkipVerify disables TLS certificate verification, which is
	// common for management ports using self-signed certificates.
	InsecureSkipVerify bool

	// RequestTimeout bounds each request. Zero means no timeout; blocking
	// exports can legitimately run for a long time.
	RequestTimeout time.Duration

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper

	Logger   *zap.Logger
	Observer Observer
}

// SessionManager performs logins against one endpoint with one set of
// credentials. It is the only place new sessions come from.
type SessionManager struct {
	endpoint  string
	creds     Credentials
	base      http.RoundTripper
	timeout   time.Duration
	logger    *zap.Logger
	observer  Observer
	inspector apierror.Inspector
}

// NewSessionManager creates a manager for endpoint (e.g. https://host:8089).
// A nil config uses defaults with TLS verification enabled.
func NewSessionManager(endpoint string, creds Credentials, cfg *SessionConfig) *SessionManager {
	if cfg == nil {
		cfg = &SessionConfig{}
	}

	base := cfg.Transport
	if base == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
		}
		base = transport
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SessionManager{
		endpoint:  strings.TrimRight(endpoint, "/"),
		creds:     creds,
		base:      base,
		timeout:   cfg.RequestTimeout,
		logger:    logger,
		observer:  observerOrNop(cfg.Observer),
		inspector: apierror.NewInspector(),
	}
}

// Authenticate logs in and returns a new session. It never retries: a
// rejected login, a missing session key or an unparseable body fail with
// ErrAuth immediately.
func (m *SessionManager) Authenticate(ctx context.Context) (*Session, error) {
	// The login request goes through a session without a token.
	anon := m.newSession("")

	m.logger.Info("Logging in", zap.String("endpoint", m.endpoint), zap.String("username", m.creds.Username))
	resp, err := anon.PostForm(ctx, opLogin, loginPath, url.Values{
		"username": {m.creds.Username},
		"password": {m.creds.Password},
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w: %w", sderrors.ErrAuth, err)
	}
	m.logger.Debug("Login response", zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, sderrors.NewAPIError(sderrors.ErrAuth, "login", resp.StatusCode, resp.Body)
	}

	var login loginResponse
	if err := xml.Unmarshal(resp.Body, &login); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %v: %w", err,
			sderrors.NewAPIError(sderrors.ErrAuth, "login", resp.StatusCode, resp.Body))
	}
	key := strings.TrimSpace(login.SessionKey)
	if key == "" {
		return nil, fmt.Errorf("no sessionKey found in login response: %w", sderrors.ErrAuth)
	}

	m.logger.Debug("Obtained session token", zap.String("token_prefix", tokenPrefix(key)))
	return m.newSession(key), nil
}

func (m *SessionManager) newSession(token string) *Session {
	return &Session{
		endpoint: m.endpoint,
		token:    token,
		client: &http.Client{
			Transport: &authTransport{token: token, base: m.base},
			Timeout:   m.timeout,
		},
		observer:  m.observer,
		inspector: m.inspector,
	}
}

// Session is an authenticated transport handle. Once the remote side rejects
// its token it must be replaced by a fresh login, never patched.
type Session struct {
	endpoint  string
	token     string
	client    *http.Client
	observer  Observer
	inspector apierror.Inspector
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Endpoint returns the base URL the session talks to.
func (s *Session) Endpoint() string { return s.endpoint }

// Token returns the session key sent in the Authorization header.
func (s *Session) Token() string { return s.token }

// PostForm sends form as application/x-www-form-urlencoded to path.
func (s *Session) PostForm(ctx context.Context, op, path string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(op, req)
}

// Get issues a GET to path with the given query parameters.
func (s *Session) Get(ctx context.Context, op, path string, query url.Values) (*Response, error) {
	u := s.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	return s.do(op, req)
}

func (s *Session) do(op string, req *http.Request) (*Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		s.observer.RequestCompleted(op, 0)
		if s.inspector.IsNetworkError(err) {
			return nil, fmt.Errorf("%w: %w", sderrors.ErrNetworkFailure, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		s.observer.RequestCompleted(op, 0)
		return nil, fmt.Errorf("%w: reading response body: %w", sderrors.ErrNetworkFailure, err)
	}

	s.observer.RequestCompleted(op, resp.StatusCode)
	return &Response{StatusCode: resp.StatusCode, Body: buf.Bytes()}, nil
}

// authTransport adds the session key and identification headers to HTTP requests
type authTransport struct {
	token string
	base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req = req.Clone(req.Context())

	if t.token != "" {
		req.Header.Set("Authorization", "Splunk "+t.token)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("searchdl/%s", version.Version))

	return t.base.RoundTrip(req)
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
