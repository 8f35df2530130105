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

// Package metadata types define the structures used for persisting
// information about download runs.
package metadata

import (
	"time"
)

// RunMetadata is the complete record of one run: what was asked for, which
// job served it, and how the retrieval went.
type RunMetadata struct {
	ToolVersion string     `json:"tool_version"`
	RunID       string     `json:"run_id"`
	Parameters  RunParams  `json:"parameters"`
	Results     RunResults `json:"results"`
}

// RunParams captures the request of a run. Credentials are never recorded.
type RunParams struct {
	Endpoint   string `json:"endpoint"`
	Query      string `json:"search_query"`
	Earliest   string `json:"earliest,omitempty"`
	Latest     string `json:"latest,omitempty"`
	OutputMode string `json:"output_mode"`
	PageSize   int    `json:"page_size,omitempty"`
	OutputFile string `json:"output_file"`
}

// RunResults contains the statistics of a completed run.
type RunResults struct {
	SID               string         `json:"sid"`
	Resumed           bool           `json:"resumed"`
	FinalState        string         `json:"final_state"`
	TotalResults      int            `json:"total_results"`
	PagesFetched      int            `json:"pages_fetched"`
	BytesFetched      int64          `json:"bytes_fetched"`
	RawEvents         int            `json:"raw_events,omitempty"`
	ExportMethod      int            `json:"export_method,omitempty"`
	PollCycles        int            `json:"poll_cycles"`
	Reauthentications int            `json:"reauthentications"`
	APICallCount      int            `json:"api_calls_made"`
	APICallsByOp      map[string]int `json:"api_calls_by_operation"`
	Duration          string         `json:"run_duration"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       time.Time      `json:"completed_at"`
}
