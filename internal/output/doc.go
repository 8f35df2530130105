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

// Package output writes retrieved search results to disk.
//
// Paged formats go through a Sink: CSVSink appends every page verbatim as it
// arrives, JSONSink collects the records of every page and writes a single
// JSON array when closed. Raw exports arrive in one piece and are written
// with WriteFileAtomic.
//
// Example usage:
//
//	sink, err := output.NewCSVSink("output.csv")
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	for _, page := range pages {
//	    if err := sink.WritePage(page); err != nil {
//	        return err
//	    }
//	}
package output
