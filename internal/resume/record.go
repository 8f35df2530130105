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

package resume

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentVersion is the current record schema version.
// Increment this when making breaking changes to the Record structure.
const CurrentVersion = 1

// ErrNoRecord is returned by Load when nothing has been saved.
var ErrNoRecord = errors.New("no saved job record")

// Store persists at most one Record.
type Store interface {
	// Load returns the saved record or ErrNoRecord.
	Load(ctx context.Context) (*Record, error)

	// Save replaces the saved record.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the saved record. Deleting nothing is not an error.
	Delete(ctx context.Context) error
}

// Record identifies a previously submitted job and the request that created it.
type Record struct {
	// Version indicates the schema version of this record.
	Version int `json:"version"`

	// Checksum is the SHA256 hash of the record content (excluding this field).
	Checksum string `json:"checksum"`

	SID      string `json:"sid"`
	Query    string `json:"search_query"`
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`

	// Timestamp is the submission time in Unix seconds.
	Timestamp float64 `json:"timestamp"`

	// RunID correlates the record with the run metadata of the submitting run.
	RunID string `json:"run_id,omitempty"`
}

// NewRecord creates a record for a job submitted now.
func NewRecord(sid, query, earliest, latest, runID string) *Record {
	return &Record{
		SID:       sid,
		Query:     query,
		Earliest:  earliest,
		Latest:    latest,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		RunID:     runID,
	}
}

// Matches reports whether the record was created for exactly this query and
// these bounds. Comparison is plain string equality; no normalization.
func (r *Record) Matches(query, earliest, latest string) bool {
	return r.Query == query && r.Earliest == earliest && r.Latest == latest
}

// SavedAt returns Timestamp as a time.
func (r *Record) SavedAt() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// encode stamps version and checksum and marshals the record.
func encode(rec *Record) ([]byte, error) {
	rec.Version = CurrentVersion
	rec.Checksum = ""

	checksum, err := calculateChecksum(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}
	rec.Checksum = checksum

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

// decode unmarshals data and verifies version and checksum.
func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("record is corrupted (invalid JSON): %w", err)
	}

	if rec.Version != CurrentVersion {
		return nil, fmt.Errorf("record version (%d) is incompatible with current version (%d)",
			rec.Version, CurrentVersion)
	}

	saved := rec.Checksum
	rec.Checksum = ""
	calculated, err := calculateChecksum(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum for validation: %w", err)
	}
	if saved != calculated {
		return nil, fmt.Errorf("record is corrupted (checksum mismatch)")
	}
	rec.Checksum = saved

	if rec.SID == "" {
		return nil, fmt.Errorf("record is corrupted (empty sid)")
	}
	return &rec, nil
}

// calculateChecksum computes the SHA256 hash of the record content.
// The checksum field itself is excluded from the calculation.
func calculateChecksum(rec *Record) (string, error) {
	cp := *rec
	cp.Checksum = ""

	data, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
