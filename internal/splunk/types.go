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
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirseerhq/searchdl/internal/apierror"
)

// Dispatch states reported by the job status endpoint. Providers may report
// others; anything that is not DONE or FAILED keeps the poll loop running.
const (
	StateQueued     = "QUEUED"
	StateParsing    = "PARSING"
	StateRunning    = "RUNNING"
	StateFinalizing = "FINALIZING"
	StateDone       = "DONE"
	StateFailed     = "FAILED"
)

// Format is the serialization requested from the results endpoints.
type Format string

const (
	FormatColumnar   Format = "csv"
	FormatStructured Format = "json"
	FormatRaw        Format = "raw"
)

// Paged reports whether results in this format are retrieved page by page.
func (f Format) Paged() bool {
	return f == FormatColumnar || f == FormatStructured
}

// ParseOutputMode maps a configured output mode (csv, json, log) to a Format.
func ParseOutputMode(mode string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "csv":
		return FormatColumnar, nil
	case "json":
		return FormatStructured, nil
	case "log", "raw":
		return FormatRaw, nil
	default:
		return "", fmt.Errorf("unsupported output mode %q, use csv, json or log", mode)
	}
}

// OutputSpec describes how results should be retrieved.
type OutputSpec struct {
	Format   Format
	PageSize int
}

// SubmitRequest carries everything needed to create a search job.
// Empty Earliest or Latest means the bound is not applied.
type SubmitRequest struct {
	Query    string
	Earliest string
	Latest   string
	App      string
}

// JobHandle identifies one submitted search job. It holds no credentials and
// can be used with any session obtained from the same credentials.
type JobHandle struct {
	SID       string
	Query     string
	Earliest  string
	Latest    string
	CreatedAt time.Time
}

// JobStatus is a snapshot of a job taken on one poll cycle.
type JobStatus struct {
	DispatchState string
	DoneProgress  *float64
	ResultCount   int
}

// IsDone reports whether the job finished successfully.
func (s *JobStatus) IsDone() bool {
	return strings.EqualFold(s.DispatchState, StateDone)
}

// IsFailed reports whether the job reached the FAILED state.
func (s *JobStatus) IsFailed() bool {
	return strings.EqualFold(s.DispatchState, StateFailed)
}

// ProgressPercent returns the completion fraction as a percentage rounded to
// two decimals, and false when the API did not report progress.
func (s *JobStatus) ProgressPercent() (float64, bool) {
	if s.DoneProgress == nil {
		return 0, false
	}
	return math.Round(*s.DoneProgress*10000) / 100, true
}

// jobStatusResponse is the JSON envelope of GET /services/search/jobs/{sid}.
type jobStatusResponse struct {
	Entry    []jobEntry         `json:"entry"`
	Messages []apierror.Message `json:"messages"`
}

type jobEntry struct {
	Name    string     `json:"name"`
	Content jobContent `json:"content"`
}

type jobContent struct {
	SID                string   `json:"sid"`
	DispatchState      string   `json:"dispatchState"`
	DoneProgress       *float64 `json:"doneProgress"`
	ResultCount        int      `json:"resultCount"`
	ScanCount          int      `json:"scanCount"`
	EventCount         int      `json:"eventCount"`
	ResultPreviewCount int      `json:"resultPreviewCount"`
	IsDone             bool     `json:"isDone"`
	IsFinalized        bool     `json:"isFinalized"`
	IsSaved            bool     `json:"isSaved"`
	TTL                int      `json:"ttl"`
}

func (c jobContent) status() *JobStatus {
	return &JobStatus{
		DispatchState: c.DispatchState,
		DoneProgress:  c.DoneProgress,
		ResultCount:   c.ResultCount,
	}
}

// createJobResponse is the JSON body of POST /services/search/jobs.
type createJobResponse struct {
	SID      string             `json:"sid"`
	Messages []apierror.Message `json:"messages"`
}

// loginResponse is the XML body of POST /services/auth/login.
type loginResponse struct {
	SessionKey string `xml:"sessionKey"`
}
