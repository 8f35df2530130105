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

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/sirseerhq/searchdl/internal/errors"
	"github.com/sirseerhq/searchdl/test/testutil"
)

var (
	okExport    = testutil.ExportReply{Status: http.StatusOK, Body: "event one\nevent two\n"}
	emptyExport = testutil.ExportReply{Status: http.StatusOK, Body: "  \n"}
	emptySearch = testutil.ExportReply{Status: http.StatusOK, Body: "Empty search"}
	denied      = testutil.ExportReply{Status: http.StatusForbidden, Body: "forbidden"}
)

func exportMethods(calls []testutil.ExportCall) []string {
	methods := make([]string, 0, len(calls))
	for _, c := range calls {
		methods = append(methods, c.Method)
	}
	return methods
}

func TestExportRaw_TierOrder(t *testing.T) {
	tests := []struct {
		name        string
		exports     [3]testutil.ExportReply
		wantMethods []string
		wantTiers   []string
	}{
		{
			name:        "first method succeeds",
			exports:     [3]testutil.ExportReply{okExport, denied, denied},
			wantMethods: []string{"export_by_sid"},
			wantTiers:   []string{"1:true"},
		},
		{
			name:        "fallback to results endpoint",
			exports:     [3]testutil.ExportReply{denied, okExport, denied},
			wantMethods: []string{"export_by_sid", "results_raw"},
			wantTiers:   []string{"1:false", "2:true"},
		},
		{
			name:        "blank and sentinel bodies fall through",
			exports:     [3]testutil.ExportReply{emptyExport, emptySearch, okExport},
			wantMethods: []string{"export_by_sid", "results_raw", "export_by_search"},
			wantTiers:   []string{"1:false", "2:false", "3:true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := testutil.NewFakeSearchAPI(t, testutil.WithExports(tt.exports[0], tt.exports[1], tt.exports[2]))
			obs := &recordingObserver{}
			_, sess := login(t, api, nil)

			body, err := unpacedFetcher(obs).ExportRaw(context.Background(), sess, &JobHandle{SID: api.SID, Query: "search index=main"})
			require.NoError(t, err)

			assert.Equal(t, okExport.Body, string(body))
			assert.Equal(t, tt.wantMethods, exportMethods(api.ExportCalls()))
			assert.Equal(t, tt.wantTiers, obs.tiers)
		})
	}
}

func TestExportRaw_RequestShapes(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(denied, denied, okExport))
	_, sess := login(t, api, nil)
	handle := &JobHandle{SID: api.SID, Query: "search index=main", Earliest: "-1h", Latest: "now"}

	_, err := unpacedFetcher(nil).ExportRaw(context.Background(), sess, handle)
	require.NoError(t, err)

	calls := api.ExportCalls()
	require.Len(t, calls, 3)

	assert.Equal(t, api.SID, calls[0].Params.Get("sid"))
	assert.Equal(t, "raw", calls[0].Params.Get("output_mode"))

	assert.Equal(t, "raw", calls[1].Params.Get("output_mode"))
	assert.Equal(t, "0", calls[1].Params.Get("count"))

	assert.Equal(t, "search index=main", calls[2].Params.Get("search"))
	assert.Equal(t, "raw", calls[2].Params.Get("output_mode"))
	assert.Equal(t, "blocking", calls[2].Params.Get("exec_mode"))
	assert.Equal(t, "-1h", calls[2].Params.Get("earliest_time"))
	assert.Equal(t, "now", calls[2].Params.Get("latest_time"))
}

func TestExportRaw_TruncatesTransformingQuery(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(denied, denied, okExport))
	_, sess := login(t, api, nil)

	_, err := unpacedFetcher(nil).ExportRaw(context.Background(), sess,
		&JobHandle{SID: api.SID, Query: "search index=main error | stats count by host"})
	require.NoError(t, err)

	calls := api.ExportCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, "search index=main error", calls[2].Params.Get("search"))
	assert.False(t, calls[2].Params.Has("earliest_time"))
}

func TestExportRaw_TruncatesStatsVariants(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(denied, denied, okExport))
	_, sess := login(t, api, nil)

	_, err := unpacedFetcher(nil).ExportRaw(context.Background(), sess,
		&JobHandle{SID: api.SID, Query: "index=main sourcetype=web | streamstats count by host"})
	require.NoError(t, err)
	assert.Equal(t, "index=main sourcetype=web", api.ExportCalls()[2].Params.Get("search"))
}

func TestExportRaw_KeepsNonTransformingPipeline(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(denied, denied, okExport))
	_, sess := login(t, api, nil)
	query := "search index=main | head 100"

	_, err := unpacedFetcher(nil).ExportRaw(context.Background(), sess, &JobHandle{SID: api.SID, Query: query})
	require.NoError(t, err)
	assert.Equal(t, query, api.ExportCalls()[2].Params.Get("search"))
}

func TestExportRaw_Exhausted(t *testing.T) {
	api := testutil.NewFakeSearchAPI(t, testutil.WithExports(denied, emptyExport, emptySearch))
	_, sess := login(t, api, nil)
	query := "index=main | stats count"

	body, err := unpacedFetcher(nil).ExportRaw(context.Background(), sess, &JobHandle{SID: api.SID, Query: query})

	assert.Nil(t, body)
	require.Error(t, err)
	assert.ErrorIs(t, err, sderrors.ErrExportExhausted)

	var exhausted *sderrors.ExportExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 3)
	assert.Equal(t, http.StatusForbidden, exhausted.Attempts[0].StatusCode)
	assert.Equal(t, "status 403", exhausted.Attempts[0].Reason)
	assert.Equal(t, "empty response", exhausted.Attempts[1].Reason)
	assert.Equal(t, "empty response", exhausted.Attempts[2].Reason)
	assert.True(t, exhausted.Transforming)
	assert.Equal(t, "index=main", exhausted.SuggestedQuery)
	assert.Contains(t, err.Error(), "all 3 raw export methods failed")
}
