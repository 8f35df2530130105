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
	"fmt"
	"os"
	"sync"
)

// CSVSink appends CSV pages to a file exactly as received. Every page
// carries its own header line, and headers are not deduplicated.
type CSVSink struct {
	mu    sync.Mutex
	file  *os.File
	pages int
	bytes int64
}

// NewCSVSink creates or truncates path.
func NewCSVSink(path string) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &CSVSink{file: file}, nil
}

// WritePage appends page to the file.
func (s *CSVSink) WritePage(page []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.file.Write(page)
	s.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	s.pages++
	return nil
}

// Pages returns the number of pages written.
func (s *CSVSink) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

// Bytes returns the number of bytes written.
func (s *CSVSink) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Close syncs and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	file := s.file
	s.file = nil

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	return file.Close()
}
