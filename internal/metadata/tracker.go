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

// Package metadata records statistics about each download run: the job that
// served it, API calls made, re-authentications, pages and bytes retrieved,
// and which raw export method succeeded.
//
// The Tracker is attached to the API client as an observer and is filled in
// as the run progresses. At the end of a run it produces a RunMetadata
// record that is saved as JSON for auditing and troubleshooting.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker collects statistics during a run. Create one at the start of each
// run. It is safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	runID     string
	startTime time.Time

	sid        string
	resumed    bool
	finalState string
	total      int
	rawEvents  int

	apiCalls     int
	apiCallsByOp map[string]int
	reauths      int
	pollCycles   int
	pages        int
	bytes        int64
	exportMethod int
}

// New creates a tracker with a fresh run id and the current time.
func New() *Tracker {
	return &Tracker{
		runID:        uuid.NewString(),
		startTime:    time.Now(),
		apiCallsByOp: make(map[string]int),
	}
}

// RunID returns the unique id of this run.
func (t *Tracker) RunID() string {
	return t.runID
}

// SetJob records the job serving this run and whether it was reused.
func (t *Tracker) SetJob(sid string, resumed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sid = sid
	t.resumed = resumed
}

// SetTotalResults records the result count reported for the job.
func (t *Tracker) SetTotalResults(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = n
}

// SetRawEvents records the number of raw events downloaded.
func (t *Tracker) SetRawEvents(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rawEvents = n
}

// RequestCompleted counts an API call.
func (t *Tracker) RequestCompleted(op string, status int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apiCalls++
	t.apiCallsByOp[op]++
}

// Reauthenticated counts a session replacement.
func (t *Tracker) Reauthenticated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reauths++
}

// PollCycle counts a status poll and remembers the last state seen.
func (t *Tracker) PollCycle(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pollCycles++
	t.finalState = state
}

// PageFetched counts a result page.
func (t *Tracker) PageFetched(format string, offset, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages++
	t.bytes += int64(bytes)
}

// ExportTier remembers which raw export method succeeded.
func (t *Tracker) ExportTier(tier int, ok bool) {
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exportMethod = tier
}

// GenerateMetadata creates the metadata record of the run. Call this at the
// end of a successful run.
func (t *Tracker) GenerateMetadata(toolVersion string, params RunParams) *RunMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	completedAt := time.Now()
	byOp := make(map[string]int, len(t.apiCallsByOp))
	for op, n := range t.apiCallsByOp {
		byOp[op] = n
	}

	return &RunMetadata{
		ToolVersion: toolVersion,
		RunID:       t.runID,
		Parameters:  params,
		Results: RunResults{
			SID:               t.sid,
			Resumed:           t.resumed,
			FinalState:        t.finalState,
			TotalResults:      t.total,
			PagesFetched:      t.pages,
			BytesFetched:      t.bytes,
			RawEvents:         t.rawEvents,
			ExportMethod:      t.exportMethod,
			PollCycles:        t.pollCycles,
			Reauthentications: t.reauths,
			APICallCount:      t.apiCalls,
			APICallsByOp:      byOp,
			Duration:          completedAt.Sub(t.startTime).String(),
			StartedAt:         t.startTime,
			CompletedAt:       completedAt,
		},
	}
}

// SaveMetadata writes metadata as indented JSON to path. The file is written
// atomically using a temporary file and rename to prevent corruption.
func SaveMetadata(metadata *RunMetadata, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	tmpFile := path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}

	if err := WriteMetadataToWriter(metadata, file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to save metadata file: %w", err)
	}

	return nil
}

// LoadMetadata reads a metadata file written by SaveMetadata.
func LoadMetadata(path string) (*RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var metadata RunMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}

// WriteMetadataToWriter serializes metadata to JSON and writes it to the
// provided io.Writer. The output is formatted with indentation for readability.
func WriteMetadataToWriter(metadata *RunMetadata, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// Summary renders the headline numbers of a run on one line.
func Summary(metadata *RunMetadata) string {
	r := metadata.Results
	parts := []string{
		fmt.Sprintf("sid=%s", r.SID),
		fmt.Sprintf("results=%d", r.TotalResults),
		fmt.Sprintf("api_calls=%d", r.APICallCount),
		fmt.Sprintf("duration=%s", r.Duration),
	}
	if r.Resumed {
		parts = append(parts, "resumed")
	}
	if r.ExportMethod > 0 {
		parts = append(parts, fmt.Sprintf("export_method=%d", r.ExportMethod))
	}
	return strings.Join(parts, " ")
}
