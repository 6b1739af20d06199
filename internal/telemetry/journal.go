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

package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	JSONLinesFile = "records.jsonl"
	unknownDayTSV = "unknown.tsv"
)

// Journal appends records to a JSON-lines file and to one TSV file
// per day, both under dir.
type Journal struct {
	dir string
	mu  sync.Mutex
}

func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// TSVName is the daily tabular log s belongs to.
func TSVName(s Snapshot) string {
	if !s.Trusted {
		return unknownDayTSV
	}
	return s.Local().Format("2006-01-02") + ".tsv"
}

// Append writes s to both logs. Both are attempted even if one fails.
func (j *Journal) Append(s Snapshot) error {
	rec := s.Columns()

	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(
		j.appendJSON(rec),
		j.appendTSV(TSVName(s), rec),
	)
}

func (j *Journal) appendJSON(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(j.dir, JSONLinesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open json log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write json log: %w", err)
	}
	return nil
}

func (j *Journal) appendTSV(name string, rec Record) error {
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tsv log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat tsv log: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if info.Size() == 0 {
		w.Write(rec.Titles())
	}
	w.Write(rec.Strings())
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write tsv log: %w", err)
	}
	return nil
}
