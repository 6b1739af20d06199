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

package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gbebox.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer Close()

	l := New("Test")
	l.Info("hello %d", 42)
	EnableDebug(false)
	l.Debug("hidden")
	EnableDebug(true)
	l.Debug("shown")
	EnableDebug(false)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "[Test] INFO: hello 42") {
		t.Errorf("log missing info line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line written while debug disabled")
	}
	if !strings.Contains(out, "[Test] DEBUG: shown") {
		t.Errorf("log missing debug line: %q", out)
	}
	if Path() != path {
		t.Errorf("Path() = %q, want %q", Path(), path)
	}
}

func TestFatalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Fatal did not panic")
		}
	}()
	New("Test").Fatal("boom")
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := tail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != "c\nd" {
		t.Errorf("tail = %q, want %q", got, "c\nd")
	}
}

func TestWebServiceToggle(t *testing.T) {
	EnableDebug(false)
	defer EnableDebug(false)

	svc := WebService()
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/toggle", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /toggle status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle", nil))
	if rec.Code != http.StatusSeeOther || !IsDebug() {
		t.Errorf("POST /toggle status = %d debug = %v", rec.Code, IsDebug())
	}
}
