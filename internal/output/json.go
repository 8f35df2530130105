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

package output

import (
	"encoding/json"
	"fmt"
	"sync"

	sderrors "github.com/sirseerhq/searchdl/internal/errors"
)

// jsonPage is the part of a structured results page the sink keeps.
type jsonPage struct {
	Results []json.RawMessage `json:"results"`
}

// JSONSink concatenates the "results" arrays of all pages and writes them as
// one indented JSON array when closed. Records are kept verbatim.
type JSONSink struct {
	mu      sync.Mutex
	path    string
	records []json.RawMessage
	closed  bool
}

// NewJSONSink creates a sink that writes to path on Close.
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path, records: []json.RawMessage{}}
}

// WritePage decodes page and keeps its records. A page that is not valid JSON
// fails with ErrFetch.
func (s *JSONSink) WritePage(page []byte) error {
	var p jsonPage
	if err := json.Unmarshal(page, &p); err != nil {
		return fmt.Errorf("error parsing JSON results: %v: %w", err,
			sderrors.NewAPIError(sderrors.ErrFetch, "parse results page", 0, page))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, p.Results...)
	return nil
}

// Count returns the number of records collected so far.
func (s *JSONSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close writes the collected records. Closing twice writes once.
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return WriteFileAtomic(s.path, data)
}
