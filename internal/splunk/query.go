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

import "strings"

// Query-shape detection is a heuristic: the lowercased query is searched for
// known command names as plain substrings. This catches variants such as
// tstats, eventstats and streamstats, and also fires on fields or values that
// merely contain a command name (sourcetype=statsd). Nothing is parsed. It only
// drives warnings and the last raw export method.

// transformingCommands turn events into derived records, so raw output is
// no longer available.
var transformingCommands = []string{
	"table", "stats", "chart", "timechart", "top", "rare", "contingency", "join",
}

// extendedTransformingCommands additionally covers commands that reshape
// events and commonly break raw output in practice.
var extendedTransformingCommands = append(append([]string{}, transformingCommands...),
	"rex", "eval", "fields", "dedup", "rename",
)

// HasTransformingCommand reports whether query mentions a transforming command.
func HasTransformingCommand(query string) bool {
	return containsAny(query, transformingCommands)
}

// HasExtendedTransformingCommand reports whether query mentions a command from
// the wider set used for the interactive raw-mode warning.
func HasExtendedTransformingCommand(query string) bool {
	return containsAny(query, extendedTransformingCommands)
}

// HasSort reports whether query uses sort, which caps results at 10,000.
func HasSort(query string) bool {
	return containsAny(query, []string{"sort"})
}

// FirstStage returns the trimmed text before the first pipe. A query without a
// pipe is returned unchanged.
func FirstStage(query string) string {
	before, _, found := strings.Cut(query, "|")
	if !found {
		return query
	}
	return strings.TrimSpace(before)
}

func containsAny(query string, commands []string) bool {
	lower := strings.ToLower(query)
	for _, cmd := range commands {
		if strings.Contains(lower, cmd) {
			return true
		}
	}
	return false
}
