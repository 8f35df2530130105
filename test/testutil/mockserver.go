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

// Package testutil provides common test helpers for searchdl
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Default credentials and job id served by FakeSearchAPI.
const (
	DefaultUsername = "admin"
	DefaultPassword = "changeme"
	DefaultSID      = "1700000000.42"
)

// SessionExpiredBody is what the API returns when a session key is no longer
// accepted.
const SessionExpiredBody = `{"messages":[{"type":"WARN","text":"call not properly authenticated"}]}`

// StatusReply is one scripted answer of the job status endpoint.
type StatusReply struct {
	State    string
	Progress float64

	// Expired answers with SessionExpiredBody and invalidates the current token.
	Expired bool

	// Raw replaces the generated body when set.
	Raw string
}

// ExportReply is the answer of one raw export method.
type ExportReply struct {
	Status int
	Body   string
}

// ExportCall records a request to one of the raw export methods.
type ExportCall struct {
	Method string
	Params url.Values
}

// Option configures a FakeSearchAPI before it starts serving.
type Option func(*FakeSearchAPI)

// FakeSearchAPI emulates the search job REST API: login, job creation, job
// status, paged results and raw exports. Every request is recorded.
type FakeSearchAPI struct {
	*httptest.Server

	Username string
	Password string
	SID      string

	// SubmitStatus and SubmitBody override the job creation reply.
	SubmitStatus int
	SubmitBody   string

	// Statuses is consumed one entry per status request; the last entry
	// repeats.
	Statuses    []StatusReply
	ResultCount int

	// Page renders a results page. The default emits CSV with a header line
	// or a JSON document with a results array.
	Page func(format string, offset, count int) string

	ExportBySID    ExportReply
	ResultsRaw     ExportReply
	ExportBySearch ExportReply

	mu             sync.Mutex
	logins         int
	validToken     string
	statusIdx      int
	statusRequests int
	submissions    []url.Values
	resultRequests []url.Values
	exportCalls    []ExportCall
	authHeaders    []string
}

// WithStatuses scripts the job status endpoint.
func WithStatuses(replies ...StatusReply) Option {
	return func(f *FakeSearchAPI) { f.Statuses = replies }
}

// WithResultCount sets the resultCount reported by the status endpoint.
func WithResultCount(n int) Option {
	return func(f *FakeSearchAPI) { f.ResultCount = n }
}

// WithExports scripts the three raw export methods in order.
func WithExports(bySID, resultsRaw, bySearch ExportReply) Option {
	return func(f *FakeSearchAPI) {
		f.ExportBySID = bySID
		f.ResultsRaw = resultsRaw
		f.ExportBySearch = bySearch
	}
}

// NewFakeSearchAPI starts a fake API that is closed when the test ends.
func NewFakeSearchAPI(t *testing.T, opts ...Option) *FakeSearchAPI {
	t.Helper()

	f := &FakeSearchAPI{
		Username:     DefaultUsername,
		Password:     DefaultPassword,
		SID:          DefaultSID,
		SubmitStatus: http.StatusCreated,
		Statuses:     []StatusReply{{State: "DONE", Progress: 1}},
		Page:         DefaultPage,
	}
	for _, opt := range opts {
		opt(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/auth/login", f.handleLogin)
	mux.HandleFunc("POST /services/search/jobs", f.authorized(f.handleSubmit))
	mux.HandleFunc("POST /services/search/jobs/export", f.authorized(f.handleExport))
	mux.HandleFunc("GET /services/search/jobs/{sid}", f.authorized(f.handleStatus))
	mux.HandleFunc("GET /services/search/jobs/{sid}/results", f.authorized(f.handleResults))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// DefaultPage renders count records starting at offset. CSV pages carry their
// own header line.
func DefaultPage(format string, offset, count int) string {
	if format == "json" {
		records := make([]map[string]string, 0, count)
		for i := offset; i < offset+count; i++ {
			records = append(records, map[string]string{"n": strconv.Itoa(i)})
		}
		body, _ := json.Marshal(map[string]any{"preview": false, "init_offset": offset, "results": records})
		return string(body)
	}

	var b strings.Builder
	b.WriteString("n\n")
	for i := offset; i < offset+count; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	return b.String()
}

func (f *FakeSearchAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PostForm.Get("username") != f.Username || r.PostForm.Get("password") != f.Password {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `<response><messages><msg type="WARN" code="incorrect_username_or_password">Login failed</msg></messages></response>`)
		return
	}

	f.logins++
	f.validToken = fmt.Sprintf("token-%d", f.logins)
	_, _ = fmt.Fprintf(w, "<response>\n  <sessionKey>%s</sessionKey>\n</response>", f.validToken)
}

func (f *FakeSearchAPI) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		f.mu.Lock()
		f.authHeaders = append(f.authHeaders, header)
		ok := f.validToken != "" && header == "Splunk "+f.validToken
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = fmt.Fprint(w, SessionExpiredBody)
			return
		}
		next(w, r)
	}
}

func (f *FakeSearchAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.submissions = append(f.submissions, r.PostForm)
	w.WriteHeader(f.SubmitStatus)
	if f.SubmitBody != "" {
		_, _ = fmt.Fprint(w, f.SubmitBody)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"sid": f.SID})
}

func (f *FakeSearchAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusRequests++
	if r.PathValue("sid") != f.SID {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"messages":[{"type":"FATAL","text":"Unknown sid."}]}`)
		return
	}

	reply := f.Statuses[len(f.Statuses)-1]
	if f.statusIdx < len(f.Statuses) {
		reply = f.Statuses[f.statusIdx]
		f.statusIdx++
	}

	switch {
	case reply.Expired:
		f.validToken = ""
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, SessionExpiredBody)
	case reply.Raw != "":
		_, _ = fmt.Fprint(w, reply.Raw)
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entry": []any{map[string]any{
				"name": f.SID,
				"content": map[string]any{
					"sid":           f.SID,
					"dispatchState": reply.State,
					"doneProgress":  reply.Progress,
					"resultCount":   f.ResultCount,
					"isDone":        strings.EqualFold(reply.State, "DONE"),
				},
			}},
		})
	}
}

func (f *FakeSearchAPI) handleResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	f.mu.Lock()
	defer f.mu.Unlock()

	if query.Get("output_mode") == "raw" {
		f.exportCalls = append(f.exportCalls, ExportCall{Method: "results_raw", Params: query})
		writeExport(w, f.ResultsRaw)
		return
	}

	f.resultRequests = append(f.resultRequests, query)
	offset, _ := strconv.Atoi(query.Get("offset"))
	count, _ := strconv.Atoi(query.Get("count"))
	if offset+count > f.ResultCount {
		count = max(f.ResultCount-offset, 0)
	}
	_, _ = fmt.Fprint(w, f.Page(query.Get("output_mode"), offset, count))
}

func (f *FakeSearchAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PostForm.Has("sid") {
		f.exportCalls = append(f.exportCalls, ExportCall{Method: "export_by_sid", Params: r.PostForm})
		writeExport(w, f.ExportBySID)
		return
	}
	f.exportCalls = append(f.exportCalls, ExportCall{Method: "export_by_search", Params: r.PostForm})
	writeExport(w, f.ExportBySearch)
}

func writeExport(w http.ResponseWriter, reply ExportReply) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, reply.Body)
}

// Logins returns the number of successful logins.
func (f *FakeSearchAPI) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// StatusRequests returns the number of job status requests.
func (f *FakeSearchAPI) StatusRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusRequests
}

// Submissions returns the forms of all job creation requests.
func (f *FakeSearchAPI) Submissions() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.submissions...)
}

// ResultRequests returns the query parameters of all paged result requests.
func (f *FakeSearchAPI) ResultRequests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.resultRequests...)
}

// ResultOffsets returns the offset parameter of every paged result request.
func (f *FakeSearchAPI) ResultOffsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	offsets := make([]int, 0, len(f.resultRequests))
	for _, q := range f.resultRequests {
		o, _ := strconv.Atoi(q.Get("offset"))
		offsets = append(offsets, o)
	}
	return offsets
}

// ExportCalls returns the raw export requests in arrival order.
func (f *FakeSearchAPI) ExportCalls() []ExportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExportCall(nil), f.exportCalls...)
}

// AuthHeaders returns the Authorization header of every authenticated request.
func (f *FakeSearchAPI) AuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}
