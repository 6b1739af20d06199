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

package sysmon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestStatDiskOfTempDir(t *testing.T) {
	dir := t.TempDir()
	d, err := statDisk(dir)
	if err != nil {
		t.Fatalf("statDisk() error: %v", err)
	}
	if d.Path != dir || d.Total == 0 || d.Free > d.Total || d.Used > d.Total {
		t.Errorf("disk = %+v", d)
	}
	if d.ReadOnly {
		t.Error("temp dir reported read-only")
	}
}

func TestStatDiskMissingPath(t *testing.T) {
	if _, err := statDisk(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestServeJSON(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var st Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.GoVersion == "" || st.Disk.Path != dir || st.Disk.Total == 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestServeHTML(t *testing.T) {
	rec := httptest.NewRecorder()
	New(t.TempDir()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "System Monitor") {
		t.Error("page has no title")
	}
}
