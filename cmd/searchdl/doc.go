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

// Package main implements the searchdl command-line interface.
// searchdl submits a search job to a Splunk-compatible search API, waits for
// it to finish and downloads its results as CSV, JSON or raw events.
//
// Everything about a run comes from the configuration file (searchdl.yaml or
// the legacy config.json) and SEARCHDL_* environment variables. The CLI
// supports:
//   - Paged CSV and JSON downloads
//   - Raw event export with three fallback methods
//   - Transparent re-login when the session expires while polling
//   - Reusing the last submitted job in debug/resume mode
//   - Optional run metadata and Prometheus textfile output
//
// Usage:
//
//	searchdl [--config path] [--force-new-job] [--yes]
//
// Example:
//
//	export SEARCHDL_PASSWORD=secret
//	searchdl --config searchdl.yaml
//
// Exit codes:
//   - 0: Success, or the run was cancelled at the confirmation prompt
//   - 1: General error
//   - 2: Authentication error
//   - 3: Network error
//   - 4: Search job failed or returned an unusable status
//   - 5: All raw export methods failed
//   - 130: Interrupted while talking to the API
package main
