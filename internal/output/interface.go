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

import "fmt"

// Sink receives result pages in fetch order.
type Sink interface {
	// WritePage hands one page of results to the sink.
	WritePage(page []byte) error

	// Close flushes the sink and releases the underlying file.
	// Nothing is guaranteed to be on disk before Close returns.
	Close() error
}

// NewSink returns the sink for a paged format ("csv" or "json").
func NewSink(format, path string) (Sink, error) {
	switch format {
	case "csv":
		sink, err := NewCSVSink(path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "json":
		return NewJSONSink(path), nil
	default:
		return nil, fmt.Errorf("no page sink for format %q", format)
	}
}
