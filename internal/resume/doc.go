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

// Package resume remembers the last submitted search job so a later run with
// the same query and time bounds can reuse it instead of submitting again.
//
// The store holds a single record. Two backends exist: a JSON file written
// atomically with a SHA256 checksum and schema version, and a Redis key for
// runs that share state across machines.
//
// Example usage:
//
//	store := resume.NewFileStore(resume.DefaultFilePath)
//	rec, err := store.Load(ctx)
//	if err == nil && rec.Matches(query, earliest, latest) {
//	    // reuse rec.SID
//	}
package resume
