// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gbebox/internal/actuator"
	"gbebox/internal/telemetry"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history_test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func snapAt(i int) telemetry.Snapshot {
	return telemetry.Snapshot{
		ID:      fmt.Sprintf("snap-%02d", i),
		Board:   "b",
		Time:    time.Date(2025, 1, 1, i, 0, 0, 0, time.UTC),
		Trusted: true,
		Outputs: actuator.State{Red: uint8(i)},
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := range 5 {
		if err := s.Record(ctx, snapAt(i)); err != nil {
			t.Fatalf("Record(%d) error: %v", i, err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d, want 3", len(got))
	}
	for i, want := range []string{"snap-04", "snap-03", "snap-02"} {
		if got[i].ID != want {
			t.Errorf("Recent()[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
	if got[0].Outputs.Red != 4 {
		t.Errorf("body not restored: red = %d", got[0].Outputs.Red)
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for range 2 {
		if err := s.Record(ctx, snapAt(1)); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("rows = %d, want 1", len(got))
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i := range 6 {
		if err := s.Record(ctx, snapAt(i)); err != nil {
			t.Fatalf("Record(%d) error: %v", i, err)
		}
	}

	n, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if n != 4 {
		t.Errorf("pruned %d, want 4", n)
	}
	got, _ := s.Recent(ctx, 10)
	if len(got) != 2 || got[1].ID != "snap-04" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestServeHTTP(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i := range 3 {
		if err := s.Record(ctx, snapAt(i)); err != nil {
			t.Fatalf("Record(%d) error: %v", i, err)
		}
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telemetry?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rows []struct {
		ID     string         `json:"id"`
		Record map[string]any `json:"record"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "snap-02" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Record["red"] != float64(2) {
		t.Errorf("record red = %v, want 2", rows[0].Record["red"])
	}

	bad := httptest.NewRecorder()
	s.ServeHTTP(bad, httptest.NewRequest(http.MethodGet, "/telemetry?limit=zero", nil))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", bad.Code)
	}
}
