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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStore_SaveAndLoad(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", ".debug_sid.json"))
	ctx := context.Background()

	rec := NewRecord("1700000000.42", "index=main error", "-24h", "now", "run-1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(store.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SID != rec.SID {
		t.Errorf("SID mismatch: got %q, want %q", loaded.SID, rec.SID)
	}
	if !loaded.Matches("index=main error", "-24h", "now") {
		t.Errorf("loaded record does not match its own request: %+v", loaded)
	}
	if loaded.Version != CurrentVersion {
		t.Errorf("Version mismatch: got %d, want %d", loaded.Version, CurrentVersion)
	}
	if loaded.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if loaded.RunID != "run-1" {
		t.Errorf("RunID mismatch: got %q", loaded.RunID)
	}
	if d := time.Since(loaded.SavedAt()); d < 0 || d > time.Minute {
		t.Errorf("SavedAt() = %v, want about now", loaded.SavedAt())
	}
}

func TestFileStore_FileLayout(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), ".debug_sid.json"))
	if err := store.Save(context.Background(), NewRecord("sid-1", "q", "", "", "")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"sid": "sid-1"`, `"search_query": "q"`, `"earliest": ""`, `"latest": ""`, `"timestamp":`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("record file missing %s:\n%s", key, data)
		}
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("record file permissions = %o, want 600", perm)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNoRecord) {
		t.Errorf("Load() error = %v, want ErrNoRecord", err)
	}
}

func TestFileStore_LoadCorrupted(t *testing.T) {
	tests := []struct {
		name    string
		content func(valid string) string
		wantMsg string
	}{
		{
			name:    "invalid json",
			content: func(string) string { return "{ invalid json" },
			wantMsg: "corrupted (invalid JSON)",
		},
		{
			name: "tampered sid",
			content: func(valid string) string {
				return strings.Replace(valid, `"sid": "sid-1"`, `"sid": "sid-2"`, 1)
			},
			wantMsg: "checksum mismatch",
		},
		{
			name: "future version",
			content: func(valid string) string {
				return strings.Replace(valid, `"version": 1`, `"version": 99`, 1)
			},
			wantMsg: "incompatible",
		},
		{
			name:    "legacy file without version",
			content: func(string) string { return `{"sid": "x", "search_query": "q", "timestamp": 1.5}` },
			wantMsg: "incompatible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "rec.json"))
			if err := store.Save(context.Background(), NewRecord("sid-1", "q", "", "", "")); err != nil {
				t.Fatal(err)
			}
			valid, err := os.ReadFile(store.Path())
			if err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(store.Path(), []byte(tt.content(string(valid))), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err = store.Load(context.Background())
			if err == nil {
				t.Fatal("Load should fail")
			}
			if errors.Is(err, ErrNoRecord) {
				t.Errorf("corruption must not look like a missing record: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestFileStore_SaveReplaces(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "rec.json"))
	ctx := context.Background()

	for _, sid := range []string{"first", "second"} {
		if err := store.Save(ctx, NewRecord(sid, "q", "", "", "")); err != nil {
			t.Fatal(err)
		}
	}

	rec, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SID != "second" {
		t.Errorf("SID = %q, want second", rec.SID)
	}
}

func TestFileStore_Delete(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "rec.json"))
	ctx := context.Background()

	if err := store.Delete(ctx); err != nil {
		t.Errorf("deleting a missing record should succeed: %v", err)
	}
	if err := store.Save(ctx, NewRecord("sid", "q", "", "", "")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Load() after Delete = %v, want ErrNoRecord", err)
	}
}

func TestNewFileStore_DefaultPath(t *testing.T) {
	if got := NewFileStore("").Path(); got != DefaultFilePath {
		t.Errorf("Path() = %q, want %q", got, DefaultFilePath)
	}
}
