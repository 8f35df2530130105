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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	sderrors "github.com/sirseerhq/searchdl/internal/errors"
	"github.com/sirseerhq/searchdl/internal/metadata"
	"github.com/sirseerhq/searchdl/internal/resume"
	"github.com/sirseerhq/searchdl/test/testutil"
)

// testRun is one configured invocation against a fake API.
type testRun struct {
	dir      string
	settings map[string]any
	env      *runEnv
	stdout   *bytes.Buffer
	logs     *observer.ObservedLogs
}

func newTestRun(t *testing.T, api *testutil.FakeSearchAPI, query string) *testRun {
	t.Helper()

	dir := t.TempDir()
	core, logs := observer.New(zap.DebugLevel)
	stdout := &bytes.Buffer{}

	return &testRun{
		dir: dir,
		settings: map[string]any{
			"splunk_url":    api.URL,
			"username":      testutil.DefaultUsername,
			"password":      testutil.DefaultPassword,
			"search_query":  query,
			"output_file":   filepath.Join(dir, "output.csv"),
			"resume_file":   filepath.Join(dir, ".debug_sid.json"),
			"poll_interval": "0s",
			"reauth_pause":  "0s",
			"page_interval": "0s",
		},
		env: &runEnv{
			stdin:      strings.NewReader(""),
			stdout:     stdout,
			stderr:     &bytes.Buffer{},
			isTerminal: func() bool { return true },
			logger:     zap.New(core),
		},
		stdout: stdout,
		logs:   logs,
	}
}

func (r *testRun) set(key string, value any) *testRun {
	r.settings[key] = value
	return r
}

func (r *testRun) path(name string) string {
	return filepath.Join(r.dir, name)
}

func (r *testRun) run(t *testing.T, opts runOptions) error {
	t.Helper()
	return r.runContext(context.Background(), t, opts)
}

func (r *testRun) runContext(ctx context.Context, t *testing.T, opts runOptions) error {
	t.Helper()

	data, err := yaml.Marshal(r.settings)
	require.NoError(t, err)
	opts.configPath = testutil.WriteConfig(t, r.dir, "searchdl.yaml", string(data))

	return runFetch(ctx, r.env, opts)
}

func (r *testRun) logged(msg string) bool {
	return r.logs.FilterMessageSnippet(msg).Len() > 0
}

func expectedCSV(total, pageSize int) string {
	var b strings.Builder
	for offset := 0; offset < total; offset += pageSize {
		b.WriteString(testutil.DefaultPage("csv", offset, min(pageSize, total-offset)))
	}
	return b.String()
}

func TestRunFetch_PagedCSV(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithResultCount(25000), testutil.WithStatuses(
		testutil.StatusReply{State: "QUEUED"},
		testutil.StatusReply{State: "RUNNING", Progress: 0.4},
		testutil.StatusReply{State: "DONE", Progress: 1},
	))
	r := newTestRun(t, api, "search index=main error")

	require.NoError(t, r.run(t, runOptions{}))

	assert.Equal(t, []int{0, 10000, 20000}, api.ResultOffsets())
	for _, q := range api.ResultRequests() {
		assert.Equal(t, "10000", q.Get("count"))
	}
	testutil.AssertFileExists(t, r.path("output.csv"))
	testutil.AssertFileContent(t, r.path("output.csv"), expectedCSV(25000, 10000))
	assert.Len(t, api.Submissions(), 1)
	assert.Equal(t, "search", api.Submissions()[0].Get("app"))
	testutil.AssertFileNotExists(t, r.path(".debug_sid.json"))
}

func TestRunFetch_PagedJSON(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithResultCount(5))
	r := newTestRun(t, api, "index=main | table host").
		set("output_mode", "json").
		set("page_size", 2).
		set("output_file", filepath.Join(t.TempDir(), "out.json"))

	require.NoError(t, r.run(t, runOptions{}))
	testutil.AssertFileExists(t, r.settings["output_file"].(string))

	var records []map[string]string
	require.NoError(t, json.Unmarshal([]byte(testutil.ReadFile(t, r.settings["output_file"].(string))), &records))
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprint(i), rec["n"])
	}
	assert.Equal(t, []int{0, 2, 4}, api.ResultOffsets())
}

func TestRunFetch_ZeroResults(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithResultCount(0))
	r := newTestRun(t, api, "index=main nothing")

	require.NoError(t, r.run(t, runOptions{}))

	assert.Empty(t, api.ResultRequests())
	testutil.AssertFileExists(t, r.path("output.csv"))
	testutil.AssertFileContent(t, r.path("output.csv"), "")
}

func TestRunFetch_ReauthenticatesDuringPolling(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithResultCount(3), testutil.WithStatuses(
		testutil.StatusReply{State: "RUNNING"},
		testutil.StatusReply{State: "RUNNING"},
		testutil.StatusReply{Expired: true},
		testutil.StatusReply{State: "DONE"},
	))
	r := newTestRun(t, api, "index=main")

	require.NoError(t, r.run(t, runOptions{}))

	assert.Equal(t, 2, api.Logins())
	testutil.AssertFileContent(t, r.path("output.csv"), expectedCSV(3, 10000))

	// Everything after the re-login uses the new session.
	headers := api.AuthHeaders()
	assert.Equal(t, "Splunk token-2", headers[len(headers)-1])
}

func TestRunFetch_RawModeConfirmation(t *testing.T) {
	exports := testutil.WithExports(
		testutil.ExportReply{Status: http.StatusOK, Body: "e1\ne2\n"},
		testutil.ExportReply{},
		testutil.ExportReply{},
	)

	tests := []struct {
		name        string
		input       string
		terminal    bool
		assumeYes   bool
		wantRun     bool
		wantMessage string
	}{
		{name: "declined", input: "n\n", terminal: true, wantMessage: "Aborting run"},
		{name: "empty answer", input: "\n", terminal: true, wantMessage: "Aborting run"},
		{name: "end of input", input: "", terminal: true, wantMessage: "Aborting run"},
		{name: "accepted", input: "y\n", terminal: true, wantRun: true},
		{name: "accepted long form", input: "YES\n", terminal: true, wantRun: true},
		{name: "piped no", input: "n\n", terminal: false, wantMessage: "Aborting run"},
		{name: "piped yes", input: "y\n", terminal: false, wantRun: true},
		{name: "nothing piped", terminal: false, wantMessage: "Aborting run"},
		{name: "assume yes", terminal: false, assumeYes: true, wantRun: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeSearchAPI(t, exports)
			r := newTestRun(t, api, "index=main | stats count").
				set("output_mode", "log").
				set("output_file", filepath.Join(t.TempDir(), "out.log"))
			r.env.stdin = strings.NewReader(tt.input)
			r.env.isTerminal = func() bool { return tt.terminal }

			err := r.run(t, runOptions{assumeYes: tt.assumeYes})
			require.NoError(t, err)

			assert.True(t, r.logged("WARNING: You are using 'log' mode"))
			assert.True(t, r.logged("index=main"), "suggested query should be shown")
			if !tt.terminal && !tt.assumeYes {
				assert.True(t, r.logged("reading the confirmation from piped input"))
			}
			outputFile := r.settings["output_file"].(string)
			if !tt.wantRun {
				assert.True(t, r.logged(tt.wantMessage), "expected log %q", tt.wantMessage)
				assert.Equal(t, 0, api.Logins(), "nothing may be sent after aborting")
				assert.Empty(t, api.Submissions())
				testutil.AssertFileNotExists(t, outputFile)
				return
			}
			testutil.AssertFileContent(t, outputFile, "e1\ne2\n")
		})
	}
}

func TestRunFetch_RawModePromptText(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t)
	r := newTestRun(t, api, "index=main | eval x=1").set("output_mode", "log")
	r.env.stdin = strings.NewReader("n\n")

	require.NoError(t, r.run(t, runOptions{}))
	assert.Contains(t, r.stdout.String(), "Continue anyway with 'log' mode?")
}

func TestRunFetch_RawModePromptsForStatsVariants(t *testing.T) {
	for _, query := range []string{
		"| tstats count where index=main by host",
		"index=main | eventstats count by host",
		"index=main | streamstats count",
	} {
		t.Run(query, func(t *testing.T) {
			api := testutil.NewFakeSearchAPI(t)
			r := newTestRun(t, api, query).set("output_mode", "log")
			r.env.stdin = strings.NewReader("n\n")

			require.NoError(t, r.run(t, runOptions{}))
			assert.Contains(t, r.stdout.String(), "Continue anyway with 'log' mode?")
			assert.Equal(t, 0, api.Logins())
		})
	}
}

func TestRunFetch_RawModeWithoutTransformingCommands(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(
		testutil.ExportReply{Status: http.StatusForbidden},
		testutil.ExportReply{Status: http.StatusOK, Body: "raw event\n"},
		testutil.ExportReply{},
	))
	r := newTestRun(t, api, "search index=main").set("output_mode", "log")
	r.env.isTerminal = func() bool {
		t.Error("no confirmation expected")
		return false
	}

	require.NoError(t, r.run(t, runOptions{}))
	testutil.AssertFileContent(t, r.path("output.csv"), "raw event\n")
	assert.Empty(t, r.stdout.String())
}

func TestRunFetch_RawExportExhausted(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(
		testutil.ExportReply{Status: http.StatusForbidden},
		testutil.ExportReply{Status: http.StatusOK, Body: ""},
		testutil.ExportReply{Status: http.StatusOK, Body: "Empty search"},
	))
	r := newTestRun(t, api, "index=main | stats count").set("output_mode", "log")

	err := r.run(t, runOptions{assumeYes: true})

	require.Error(t, err)
	assert.ErrorIs(t, err, sderrors.ErrExportExhausted)
	assert.Equal(t, 5, mapErrorToExitCode(err))
	assert.Len(t, api.ExportCalls(), 3)
	assert.Equal(t, "index=main", api.ExportCalls()[2].Params.Get("search"))
	testutil.AssertFileNotExists(t, r.path("output.csv"))
}

func TestRunFetch_SortWarning(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t)
	r := newTestRun(t, api, "index=main | sort -_time")

	require.NoError(t, r.run(t, runOptions{}))
	assert.True(t, r.logged("caps results to 10,000"))
}

func TestRunFetch_Resume(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithResultCount(2))
	r := newTestRun(t, api, "index=main").set("debug", true).set("earliest", "-1h")
	store := resume.NewFileStore(r.path(".debug_sid.json"))

	// First run submits and saves the job.
	require.NoError(t, r.run(t, runOptions{}))
	require.Len(t, api.Submissions(), 1)
	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.SID, rec.SID)
	assert.True(t, rec.Matches("index=main", "-1h", ""))

	// Same query and bounds: the saved job is reused and still polled.
	polls := api.StatusRequests()
	require.NoError(t, r.run(t, runOptions{}))
	assert.Len(t, api.Submissions(), 1)
	assert.Greater(t, api.StatusRequests(), polls)
	assert.True(t, r.logged("Using saved SID"))
	testutil.AssertFileContent(t, r.path("output.csv"), expectedCSV(2, 10000))

	// --force-new-job always submits.
	require.NoError(t, r.run(t, runOptions{forceNewJob: true}))
	assert.Len(t, api.Submissions(), 2)

	// A different bound replaces the record.
	r.set("latest", "now")
	require.NoError(t, r.run(t, runOptions{}))
	assert.Len(t, api.Submissions(), 3)
	assert.True(t, r.logged("doesn't match current search parameters"))
	rec, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.Matches("index=main", "-1h", "now"))
}

func TestRunFetch_CorruptResumeRecord(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t)
	r := newTestRun(t, api, "index=main").set("resume", true)
	require.NoError(t, os.WriteFile(r.path(".debug_sid.json"), []byte("{broken"), 0o600))

	require.NoError(t, r.run(t, runOptions{}))
	assert.Len(t, api.Submissions(), 1)
	assert.True(t, r.logged("Failed to load saved SID"))
}

func TestRunFetch_MetadataAndMetrics(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithResultCount(15))
	r := newTestRun(t, api, "index=main").
		set("page_size", 10).
		set("metadata_file", filepath.Join(t.TempDir(), "run.json")).
		set("metrics_file", filepath.Join(t.TempDir(), "searchdl.prom"))

	require.NoError(t, r.run(t, runOptions{}))

	md, err := metadata.LoadMetadata(r.settings["metadata_file"].(string))
	require.NoError(t, err)
	assert.Equal(t, api.SID, md.Results.SID)
	assert.Equal(t, 15, md.Results.TotalResults)
	assert.Equal(t, 2, md.Results.PagesFetched)
	assert.Equal(t, "DONE", md.Results.FinalState)
	assert.False(t, md.Results.Resumed)
	assert.NotEmpty(t, md.RunID)
	assert.NotContains(t, testutil.ReadFile(t, r.settings["metadata_file"].(string)), testutil.DefaultPassword)

	prom := testutil.ReadFile(t, r.settings["metrics_file"].(string))
	assert.Contains(t, prom, `searchdl_pages_fetched_total{format="csv"} 2`)
	assert.Contains(t, prom, "searchdl_last_run_success 1")
}

func TestRunFetch_MetricsWrittenOnFailure(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithStatuses(testutil.StatusReply{State: "FAILED"}))
	r := newTestRun(t, api, "index=main").set("metrics_file", filepath.Join(t.TempDir(), "searchdl.prom"))

	err := r.run(t, runOptions{})
	require.ErrorIs(t, err, sderrors.ErrJobFailed)
	assert.Contains(t, testutil.ReadFile(t, r.settings["metrics_file"].(string)), "searchdl_last_run_success 0")
}

func TestRunFetch_Failures(t *testing.T) {
	tests := []struct {
		name     string
		opts     []testutil.Option
		modify   func(*testRun)
		wantKind error
		wantCode int
	}{
		{
			name:     "wrong password",
			modify:   func(r *testRun) { r.set("password", "wrong") },
			wantKind: sderrors.ErrAuth,
			wantCode: 2,
		},
		{
			name:     "job failed",
			opts:     []testutil.Option{testutil.WithStatuses(testutil.StatusReply{State: "FAILED"})},
			wantKind: sderrors.ErrJobFailed,
			wantCode: 4,
		},
		{
			name:     "malformed status",
			opts:     []testutil.Option{testutil.WithStatuses(testutil.StatusReply{Raw: `{"entry":[]}`})},
			wantKind: sderrors.ErrPoll,
			wantCode: 4,
		},
		{
			name: "submission rejected",
			opts: []testutil.Option{func(f *testutil.FakeSearchAPI) {
				f.SubmitStatus = http.StatusBadRequest
				f.SubmitBody = `{"messages":[{"type":"FATAL","text":"Unknown search command 'foo'."}]}`
			}},
			wantKind: sderrors.ErrSubmission,
			wantCode: 1,
		},
		{
			name:     "missing query",
			modify:   func(r *testRun) { r.set("search_query", "") },
			wantKind: sderrors.ErrInvalidConfig,
			wantCode: 1,
		},
		{
			name:     "unreachable server",
			modify:   func(r *testRun) { r.set("splunk_url", "http://127.0.0.1:1") },
			wantKind: sderrors.ErrNetworkFailure,
			wantCode: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeSearchAPI(t, tt.opts...)
			r := newTestRun(t, api, "index=main")
			if tt.modify != nil {
				tt.modify(r)
			}

			err := r.run(t, runOptions{})

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantCode, mapErrorToExitCode(err))
		})
	}
}

func TestRunFetch_InterruptedIsNotANetworkFailure(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t)
	r := newTestRun(t, api, "index=main")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.runContext(ctx, t, runOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, sderrors.ErrNetworkFailure)
	assert.Equal(t, exitInterrupted, mapErrorToExitCode(err))
	testutil.AssertFileNotExists(t, r.path("output.csv"))
}

func TestMapErrorToExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"auth", fmt.Errorf("login: %w", sderrors.ErrAuth), 2},
		{"auth over network", fmt.Errorf("login: %w: %w", sderrors.ErrAuth, sderrors.ErrNetworkFailure), 3},
		{"network", sderrors.ErrNetworkFailure, 3},
		{"job failed", sderrors.NewAPIError(sderrors.ErrJobFailed, "job", 200, nil), 4},
		{"poll", sderrors.ErrPoll, 4},
		{"export", &sderrors.ExportExhaustedError{}, 5},
		{"fetch", sderrors.ErrFetch, 1},
		{"config", sderrors.ErrInvalidConfig, 1},
		{"other", errors.New("boom"), 1},
		{"interrupted", context.Canceled, 130},
		{"interrupted request", fmt.Errorf("poll job 1: %w: %w", sderrors.ErrPoll, &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}), 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErrorToExitCode(tt.err); got != tt.want {
				t.Errorf("mapErrorToExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand(&runEnv{})

	for _, name := range []string{"config", "force-new-job", "yes"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("positional arguments should be rejected")
	}
}
