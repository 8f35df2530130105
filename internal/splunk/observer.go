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

// Observer receives notifications about API activity. Implementations must not
// block; they are called inline on the single control path.
type Observer interface {
	// RequestCompleted is called after every API request. status is 0 when
	// the request failed before a response arrived.
	RequestCompleted(op string, status int)

	// Reauthenticated is called after an expired session was replaced.
	Reauthenticated()

	// PollCycle is called once per job status poll that carried a state.
	PollCycle(state string)

	// PageFetched is called for every results page retrieved.
	PageFetched(format string, offset, bytes int)

	// ExportTier is called after each raw export method was attempted.
	ExportTier(tier int, ok bool)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RequestCompleted(string, int) {}
func (NopObserver) Reauthenticated() {}
func (NopObserver) PollCycle(string) {}
func (NopObserver) PageFetched(string, int, int) {}
func (NopObserver) ExportTier(int, bool) {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) RequestCompleted(op string, status int) {
	for _, o := range m {
		o.RequestCompleted(op, status)
	}
}

func (m MultiObserver) Reauthenticated() {
	for _, o := range m {
		o.Reauthenticated()
	}
}

func (m MultiObserver) PollCycle(state string) {
	for _, o := range m {
		o.PollCycle(state)
	}
}

func (m MultiObserver) PageFetched(format string, offset, bytes int) {
	for _, o := range m {
		o.PageFetched(format, offset, bytes)
	}
}

func (m MultiObserver) ExportTier(tier int, ok bool) {
	for _, o := range m {
		o.ExportTier(tier, ok)
	}
}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
