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
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	sderrors "github.com/sirseerhq/searchdl/internal/errors"
)

const exportPath = "/services/search/jobs/export"

// exportMethod is one raw export strategy.
type exportMethod struct {
	name string
	run  func(ctx context.Context, sess *Session) (*Response, error)
}

// ExportRaw retrieves the unstructured event text of a job. Three methods are
// tried strictly in order, each only when the previous one failed:
//
//  1. the export endpoint with the job's sid
//  2. the results endpoint with output_mode=raw and count=0 (all results)
//  3. the export endpoint re-running the query in blocking mode, truncated to
//     its first pipeline stage when it contains transforming commands
//
// A method succeeds on status 200 with a non-blank body that is not the
// empty-search sentinel. When all fail an *errors.ExportExhaustedError is
// returned.
func (f *Fetcher) ExportRaw(ctx context.Context, sess *Session, handle *JobHandle) ([]byte, error) {
	transforming := HasTransformingCommand(handle.Query)
	if transforming {
		f.logger.Warn("Search query contains transforming commands that may prevent raw log output; consider csv or json mode",
			zap.String("query", handle.Query))
	}
	f.logJobDetails(ctx, sess, handle)

	resubmitted := handle.Query
	if transforming {
		resubmitted = FirstStage(handle.Query)
	}

	methods := []exportMethod{
		{
			name: "export endpoint with sid",
			run: func(ctx context.Context, sess *Session) (*Response, error) {
				return sess.PostForm(ctx, opExportBySID, exportPath, url.Values{
					"sid":         {handle.SID},
					"output_mode": {string(FormatRaw)},
				})
			},
		},
		{
			name: "results endpoint as raw",
			run: func(ctx context.Context, sess *Session) (*Response, error) {
				return sess.Get(ctx, opResultsRaw, JobPath(handle.SID)+"/results", url.Values{
					"output_mode": {string(FormatRaw)},
					"count":       {"0"},
				})
			},
		},
		{
			name: "export endpoint with search",
			run: func(ctx context.Context, sess *Session) (*Response, error) {
				if resubmitted != handle.Query {
					f.logger.Info("Trying with modified search query (transforming commands removed)",
						zap.String("query", resubmitted))
				}
				form := url.Values{
					"search":      {resubmitted},
					"output_mode": {string(FormatRaw)},
					"exec_mode":   {"blocking"},
				}
				if handle.Earliest != "" {
					form.Set("earliest_time", handle.Earliest)
				}
				if handle.Latest != "" {
					form.Set("latest_time", handle.Latest)
				}
				return sess.PostForm(ctx, opExportBySearch, exportPath, form)
			},
		},
	}

	exhausted := &sderrors.ExportExhaustedError{
		Transforming:   transforming,
		Query:          handle.Query,
		SuggestedQuery: FirstStage(handle.Query),
	}

	for i, m := range methods {
		tier := i + 1
		f.logger.Info("Trying raw export method", zap.Int("method", tier), zap.String("name", m.name))

		body, attempt := f.tryExport(ctx, sess, tier, m)
		if attempt == nil {
			f.observer.ExportTier(tier, true)
			f.logger.Info("Raw export method succeeded", zap.Int("method", tier), zap.String("name", m.name))
			return body, nil
		}

		f.observer.ExportTier(tier, false)
		f.logger.Warn("Raw export method failed",
			zap.Int("method", tier),
			zap.String("name", m.name),
			zap.String("reason", attempt.Reason))
		exhausted.Attempts = append(exhausted.Attempts, *attempt)
	}

	f.logger.Error("All methods to retrieve raw logs failed")
	if transforming {
		f.logger.Error("Raw log mode cannot be used with transforming commands; use csv or json output or remove them",
			zap.String("original", handle.Query),
			zap.String("try", exhausted.SuggestedQuery))
	} else {
		f.logger.Error("The instance may restrict raw exports, the search may need to start with a 'search' command, " +
			"or the selected indexes may not support raw output")
	}
	return nil, exhausted
}

// tryExport runs one method and returns either the body or a description of
// why it failed. Transport errors fall through to the next method.
func (f *Fetcher) tryExport(ctx context.Context, sess *Session, tier int, m exportMethod) ([]byte, *sderrors.TierAttempt) {
	attempt := &sderrors.TierAttempt{Tier: tier, Name: m.name}

	resp, err := m.run(ctx, sess)
	if err != nil {
		attempt.Reason = err.Error()
		return nil, attempt
	}
	attempt.StatusCode = resp.StatusCode
	f.logger.Debug("Export response",
		zap.Int("method", tier),
		zap.Int("status", resp.StatusCode),
		zap.String("preview", sderrors.Preview(resp.Body)))

	switch {
	case resp.StatusCode != http.StatusOK:
		attempt.Reason = fmt.Sprintf("status %d", resp.StatusCode)
	case f.inspector.IsEmptyExport(resp.Body):
		attempt.Reason = "empty response"
	default:
		return resp.Body, nil
	}
	return nil, attempt
}

// logJobDetails records job statistics that help diagnose empty exports.
// Failures are only logged.
func (f *Fetcher) logJobDetails(ctx context.Context, sess *Session, handle *JobHandle) {
	content, err := f.jobContent(ctx, sess, handle)
	if err != nil {
		f.logger.Warn("Failed to retrieve job details", zap.Error(err))
		return
	}
	f.logger.Debug("Job details",
		zap.String("state", content.DispatchState),
		zap.Int("result_count", content.ResultCount),
		zap.Int("scan_count", content.ScanCount),
		zap.Int("preview_count", content.ResultPreviewCount),
		zap.Bool("done", content.IsDone),
		zap.Bool("finalized", content.IsFinalized),
		zap.Bool("saved", content.IsSaved),
		zap.Int("ttl", content.TTL))
}
