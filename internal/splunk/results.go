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
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirseerhq/searchdl/internal/apierror"
	sderrors "github.com/sirseerhq/searchdl/internal/errors"
)

// DefaultPageInterval is the client-side pause between two result pages.
const DefaultPageInterval = time.Second

// PageSink receives result pages in fetch order.
type PageSink interface {
	WritePage(page []byte) error
}

// FetcherConfig configures result retrieval.
type FetcherConfig struct {
	// PageInterval paces page requests. Zero disables pacing.
	PageInterval time.Duration

	Logger   *zap.Logger
	Observer Observer
}

// DefaultFetcherConfig returns the default page pacing.
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{PageInterval: DefaultPageInterval}
}

// Fetcher retrieves the results of completed jobs.
type Fetcher struct {
	limiter   *rate.Limiter
	logger    *zap.Logger
	observer  Observer
	inspector apierror.Inspector
}

// NewFetcher creates a Fetcher. A nil config uses DefaultFetcherConfig.
func NewFetcher(cfg *FetcherConfig) *Fetcher {
	if cfg == nil {
		cfg = DefaultFetcherConfig()
	}
	limit := rate.Inf
	if cfg.PageInterval > 0 {
		limit = rate.Every(cfg.PageInterval)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
		observer:  observerOrNop(cfg.Observer),
		inspector: apierror.NewInspector(),
	}
}

// GetTotalCount returns the job's current result count. It bounds the paged
// retrieval loop.
func (f *Fetcher) GetTotalCount(ctx context.Context, sess *Session, handle *JobHandle) (int, error) {
	content, err := f.jobContent(ctx, sess, handle)
	if err != nil {
		return 0, err
	}
	f.logger.Info("Total results to fetch", zap.Int("total", content.ResultCount))
	return content.ResultCount, nil
}

func (f *Fetcher) jobContent(ctx context.Context, sess *Session, handle *JobHandle) (*jobContent, error) {
	resp, err := sess.Get(ctx, opJobInfo, JobPath(handle.SID), url.Values{"output_mode": {"json"}})
	if err != nil {
		return nil, fmt.Errorf("retrieve job info: %w: %w", sderrors.ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, sderrors.NewAPIError(sderrors.ErrFetch, "retrieve job info", resp.StatusCode, resp.Body)
	}

	var envelope jobStatusResponse
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse job info: %v: %w", err,
			sderrors.NewAPIError(sderrors.ErrFetch, "retrieve job info", resp.StatusCode, resp.Body))
	}
	if len(envelope.Entry) == 0 {
		return nil, sderrors.NewAPIError(sderrors.ErrFetch, "retrieve job info: no entry", resp.StatusCode, resp.Body)
	}
	return &envelope.Entry[0].Content, nil
}

// FetchPage requests count results starting at offset in the given format.
// The server truncates the last page.
func (f *Fetcher) FetchPage(ctx context.Context, sess *Session, handle *JobHandle, offset, count int, format Format) ([]byte, error) {
	f.logger.Debug("Fetching results", zap.Int("offset", offset), zap.Int("count", count), zap.String("format", string(format)))

	resp, err := sess.Get(ctx, opFetchResults, JobPath(handle.SID)+"/results", url.Values{
		"output_mode": {string(format)},
		"offset":      {strconv.Itoa(offset)},
		"count":       {strconv.Itoa(count)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch results at offset %d: %w: %w", offset, sderrors.ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, sderrors.NewAPIError(sderrors.ErrFetch,
			fmt.Sprintf("fetch results at offset %d", offset), resp.StatusCode, resp.Body)
	}

	f.observer.PageFetched(string(format), offset, len(resp.Body))
	return resp.Body, nil
}

// FetchPaged drains total results page by page into sink. Offsets start at 0
// and advance by spec.PageSize, so exactly ceil(total/PageSize) pages are
// requested. It returns the number of pages written.
func (f *Fetcher) FetchPaged(ctx context.Context, sess *Session, handle *JobHandle, spec OutputSpec, total int, sink PageSink) (int, error) {
	if !spec.Format.Paged() {
		return 0, fmt.Errorf("format %q does not support paging", spec.Format)
	}
	if spec.PageSize <= 0 {
		return 0, fmt.Errorf("page size must be positive, got: %d", spec.PageSize)
	}

	f.logger.Info("Starting to fetch results", zap.String("format", string(spec.Format)), zap.Int("total", total))

	var (
		pages     int
		startTime = time.Now()
	)
	for offset := 0; offset < total; offset += spec.PageSize {
		if err := f.limiter.Wait(ctx); err != nil {
			return pages, err
		}

		f.logger.Info("Fetching results page",
			zap.String("format", string(spec.Format)),
			zap.Int("offset", offset),
			zap.Int("page", pages+1),
			zap.String("eta", estimateRemaining(offset, total, startTime)))

		page, err := f.FetchPage(ctx, sess, handle, offset, spec.PageSize, spec.Format)
		if err != nil {
			return pages, err
		}
		if err := sink.WritePage(page); err != nil {
			return pages, fmt.Errorf("write page at offset %d: %w", offset, err)
		}
		pages++
	}

	return pages, nil
}

// estimateRemaining extrapolates the time left from the progress so far.
func estimateRemaining(done, total int, startTime time.Time) string {
	if done <= 0 || total <= 0 {
		return "unknown"
	}
	elapsed := time.Since(startTime)
	totalTime := elapsed.Seconds() * float64(total) / float64(done)
	remaining := time.Duration(totalTime-elapsed.Seconds()) * time.Second
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Round(time.Second).String()
}
