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

// Package backlog keeps snapshots that could not be published, one file
// each, until they can be replayed.
package backlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gbebox/internal/telemetry"
	"gbebox/pkg/logger"
)

const (
	ext           = ".json"
	badExt        = ".bad"
	tmpExt        = ".tmp"
	timestampName = "2006-01-02T15-04-05"
)

// Entry is the on-disk envelope. Seq orders entries regardless of name.
type Entry struct {
	Seq      uint64             `json:"seq"`
	Snapshot telemetry.Snapshot `json:"snapshot"`
}

// Item is a stored entry and the file holding it.
type Item struct {
	Name string
	Entry
}

type Store struct {
	log *logger.Logger
	dir string

	mu  sync.Mutex
	seq uint64
}

// Open prepares dir and resumes the sequence after the highest stored
// entry. Unreadable entries are quarantined.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backlog dir: %w", err)
	}
	s := &Store{log: logger.New("Backlog"), dir: dir}

	items, err := s.list()
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		s.seq = max(s.seq, it.Seq)
	}
	if len(items) > 0 {
		s.log.Info("%d entries pending", len(items))
	}
	return s, nil
}

// Dir returns the directory the store lives in.
func (s *Store) Dir() string { return s.dir }

// Put stores snap under a fresh name and returns that name.
func (s *Store) Put(snap telemetry.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.freeName(snap)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(Entry{Seq: s.seq + 1, Snapshot: snap})
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, name), data); err != nil {
		return "", err
	}
	s.seq++
	return name, nil
}

// freeName picks a name no existing file uses. Trusted snapshots are
// named by their local time with a (k) suffix on collision; the rest take
// the first free UnknownDate(N). A name that cannot be checked is an
// error, not a collision.
func (s *Store) freeName(snap telemetry.Snapshot) (string, error) {
	next := func(n int) string { return fmt.Sprintf("UnknownDate(%d)%s", n, ext) }
	if snap.Trusted {
		base := snap.Local().Format(timestampName)
		next = func(k int) string {
			if k == 0 {
				return base + ext
			}
			return fmt.Sprintf("%s(%d)%s", base, k, ext)
		}
	}

	start := 0
	if !snap.Trusted {
		start = 1
	}
	for n := start; ; n++ {
		name := next(n)
		taken, err := s.exists(name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
}

func (s *Store) exists(name string) (bool, error) {
	_, err := os.Lstat(filepath.Join(s.dir, name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
}

func writeAtomic(path string, data []byte) error {
	tmp := path + tmpExt
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync entry: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit entry: %w", err)
	}
	return nil
}

// List returns every entry, oldest first.
func (s *Store) List() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Store) list() ([]Item, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}

	var items []Item
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		e, err := readEntry(filepath.Join(s.dir, name))
		if err != nil {
			s.quarantine(name, err)
			continue
		}
		items = append(items, Item{Name: name, Entry: e})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Seq != items[j].Seq {
			return items[i].Seq < items[j].Seq
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func readEntry(path string) (Entry, error) {
	var e Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if e.Snapshot.ID == "" {
		return e, errors.New("entry has no snapshot id")
	}
	return e, nil
}

func (s *Store) quarantine(name string, cause error) {
	s.log.Warn("quarantining %s: %v", name, cause)
	path := filepath.Join(s.dir, name)
	if err := os.Rename(path, path+badExt); err != nil {
		s.log.Error("quarantine %s: %v", name, err)
	}
}

// Len counts the stored entries.
func (s *Store) Len() (int, error) {
	items, err := s.List()
	return len(items), err
}

// Delete removes an entry. A missing entry is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Cleanup deletes the oldest entries so at most keep remain. It returns
// how many were deleted.
func (s *Store) Cleanup(keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.list()
	if err != nil {
		return 0, err
	}
	excess := len(items) - keep
	if excess <= 0 {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, it := range items[:excess] {
		if err := os.Remove(filepath.Join(s.dir, it.Name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.log.Info("retention: dropped %d oldest entries", removed)
	return removed, errors.Join(errs...)
}
