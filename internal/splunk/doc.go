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

// Package splunk provides a client for the asynchronous search job REST API.
// It drives one search job through its whole lifecycle: logging in, submitting
// the job, polling it to completion with transparent re-authentication, and
// retrieving the results page by page or through the raw export endpoints.
//
// The package includes:
//   - SessionManager and Session, an immutable authenticated transport handle
//   - JobController, which submits jobs and polls them until DONE
//   - Fetcher, which counts, pages and exports results
//   - Query-shape heuristics used to warn about raw-output incompatibilities
//   - An Observer hook for metrics and run statistics
//
// Basic usage:
//
//	manager := splunk.NewSessionManager("https://splunk:8089", creds, nil)
//	sess, err := manager.Authenticate(ctx)
//	if err != nil {
//	    // Handle error
//	}
//	jobs := splunk.NewJobController(manager, nil)
//	handle, err := jobs.Submit(ctx, sess, splunk.SubmitRequest{Query: "search index=main"})
//	sess, status, err := jobs.PollUntilDone(ctx, sess, handle)
//
// Execution is strictly sequential. A Session is never modified after it is
// created; re-authentication produces a new one that callers must keep using.
package splunk
