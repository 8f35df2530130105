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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sirseerhq/searchdl/internal/apierror"
	sderrors "github.com/sirseerhq/searchdl/internal/errors"
)

const jobsPath = "/services/search/jobs"

// Default timings of the poll loop.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultReauthPause  = 2 * time.Second
)

// Authenticator produces a fresh session. *SessionManager implements it.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ControllerConfig configures the job lifecycle loop.
type ControllerConfig struct {
	// PollInterval is the pause between two status requests.
	PollInterval time.Duration

	// ReauthPause is the pause after a re-login before polling again.
	ReauthPause time.Duration

	// Sleep replaces the real clock in tests.
	Sleep Sleeper

	Logger   *zap.Logger
	Observer Observer
}

// DefaultControllerConfig returns the default poll timings.
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		PollInterval: DefaultPollInterval,
		ReauthPause:  DefaultReauthPause,
	}
}

// JobController submits search jobs and drives them to completion. There is
// no push channel; every state transition is observed by polling.
type JobController struct {
	auth         Authenticator
	pollInterval time.Duration
	reauthPause  time.Duration
	sleep        Sleeper
	logger       *zap.Logger
	observer     Observer
	inspector    apierror.Inspector
}

// NewJobController creates a controller that re-authenticates through auth.
func NewJobController(auth Authenticator, cfg *ControllerConfig) *JobController {
	if cfg == nil {
		cfg = DefaultControllerConfig()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobController{
		auth:         auth,
		pollInterval: cfg.PollInterval,
		reauthPause:  cfg.ReauthPause,
		sleep:        sleep,
		logger:       logger,
		observer:     observerOrNop(cfg.Observer),
		inspector:    apierror.NewInspector(),
	}
}

// Submit creates a search job in req.App and returns its handle.
func (c *JobController) Submit(ctx context.Context, sess *Session, req SubmitRequest) (*JobHandle, error) {
	form := url.Values{
		"search":      {req.Query},
		"output_mode": {"json"},
	}
	if req.App != "" {
		form.Set("app", req.App)
	}
	if req.Earliest != "" {
		form.Set("earliest_time", req.Earliest)
	}
	if req.Latest != "" {
		form.Set("latest_time", req.Latest)
	}

	c.logger.Info("Creating search job", zap.String("app", req.App))
	resp, err := sess.PostForm(ctx, opSubmitJob, jobsPath, form)
	if err != nil {
		return nil, fmt.Errorf("create search job: %w: %w", sderrors.ErrSubmission, err)
	}
	c.logger.Debug("Job creation response", zap.Int("status", resp.StatusCode), zap.ByteString("body", resp.Body))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, sderrors.NewAPIError(sderrors.ErrSubmission, "create search job", resp.StatusCode, resp.Body)
	}

	var created createJobResponse
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse job creation response: %v: %w", err,
			sderrors.NewAPIError(sderrors.ErrSubmission, "create search job", resp.StatusCode, resp.Body))
	}
	if strings.TrimSpace(created.SID) == "" {
		return nil, sderrors.NewAPIError(sderrors.ErrSubmission, "create search job: no sid in response", resp.StatusCode, resp.Body)
	}

	c.logger.Info("Job created", zap.String("sid", created.SID))
	return &JobHandle{
		SID:       created.SID,
		Query:     req.Query,
		Earliest:  req.Earliest,
		Latest:    req.Latest,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// PollUntilDone requests the job status every poll interval until the
// dispatch state is DONE. An expired session is replaced through the
// Authenticator and polling resumes; the possibly new session is returned and
// must be used for everything that follows.
//
// There is no timeout: a job that never completes is polled until ctx ends.
// A FAILED job returns ErrJobFailed, any other unusable response ErrPoll.
func (c *JobController) PollUntilDone(ctx context.Context, sess *Session, handle *JobHandle) (*Session, *JobStatus, error) {
	path := JobPath(handle.SID)
	query := url.Values{"output_mode": {"json"}}

	for {
		resp, err := sess.Get(ctx, opPollJob, path, query)
		if err != nil {
			return sess, nil, fmt.Errorf("poll job %s: %w: %w", handle.SID, sderrors.ErrPoll, err)
		}

		var envelope jobStatusResponse
		if err := json.Unmarshal(resp.Body, &envelope); err != nil {
			return sess, nil, fmt.Errorf("failed to parse polling response: %v: %w", err,
				sderrors.NewAPIError(sderrors.ErrPoll, "poll job "+handle.SID, resp.StatusCode, resp.Body))
		}

		if len(envelope.Entry) == 0 {
			if !c.inspector.IsSessionExpired(envelope.Messages) {
				return sess, nil, sderrors.NewAPIError(sderrors.ErrPoll,
					"unexpected response during polling", resp.StatusCode, resp.Body)
			}

			c.logger.Warn("Session expired, re-authenticating")
			fresh, err := c.auth.Authenticate(ctx)
			if err != nil {
				return sess, nil, fmt.Errorf("re-authenticate: %w", err)
			}
			sess = fresh
			c.observer.Reauthenticated()

			if err := c.sleep(ctx, c.reauthPause); err != nil {
				return sess, nil, err
			}
			continue
		}

		status := envelope.Entry[0].Content.status()
		c.logStatus(status)

		if status.DispatchState == "" {
			return sess, nil, sderrors.NewAPIError(sderrors.ErrPoll,
				"unexpected job info response", resp.StatusCode, resp.Body)
		}
		c.observer.PollCycle(strings.ToUpper(status.DispatchState))

		if status.IsDone() {
			c.logger.Info("Job completed", zap.String("sid", handle.SID), zap.Int("result_count", status.ResultCount))
			return sess, status, nil
		}
		if status.IsFailed() {
			return sess, status, sderrors.NewAPIError(sderrors.ErrJobFailed,
				"job "+handle.SID+" failed", resp.StatusCode, resp.Body)
		}

		c.logger.Debug("Polling: waiting before next check", zap.Duration("interval", c.pollInterval))
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return sess, nil, err
		}
	}
}

func (c *JobController) logStatus(status *JobStatus) {
	if pct, ok := status.ProgressPercent(); ok {
		c.logger.Info("Job state", zap.String("state", status.DispatchState), zap.Float64("progress_pct", pct))
		return
	}
	c.logger.Info("Job state", zap.String("state", status.DispatchState))
}

// JobPath returns the REST path of a job.
func JobPath(sid string) string {
	return jobsPath + "/" + url.PathEscape(sid)
}

// JobURL returns a link to the job's JSON status, handy for debugging.
func JobURL(sess *Session, sid string) string {
	return sess.Endpoint() + JobPath(sid) + "?output_mode=json"
}
