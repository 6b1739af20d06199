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

package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDevice struct {
	feeds    atomic.Int64
	mu       sync.Mutex
	closed   bool
	disarmed bool
}

func (d *fakeDevice) Feed() error {
	d.feeds.Add(1)
	return nil
}

func (d *fakeDevice) Close(disarm bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed, d.disarmed = true, disarm
	return nil
}

type fakeHealth struct {
	stalled atomic.Bool
	failed  string
}

func (h *fakeHealth) Stalled(time.Time) []string {
	if h.stalled.Load() {
		return []string{"sensors"}
	}
	return nil
}

func (h *fakeHealth) Failed() string { return h.failed }

func run(t *testing.T, w *Watchdog, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	w.Run(ctx)
}

func TestFeedsWhileHealthy(t *testing.T) {
	dev, health := &fakeDevice{}, &fakeHealth{}
	w := New(dev, health, 5*time.Millisecond, nil)
	w.graceful = func() bool { return true }

	run(t, w, 60*time.Millisecond)

	if n := dev.feeds.Load(); n < 3 {
		t.Errorf("feeds = %d, want several", n)
	}
	if !dev.closed || !dev.disarmed {
		t.Errorf("closed = %v disarmed = %v, want both after a requested stop", dev.closed, dev.disarmed)
	}
}

func TestWithholdsFeedWhileStalled(t *testing.T) {
	dev, health := &fakeDevice{}, &fakeHealth{}
	health.stalled.Store(true)
	w := New(dev, health, 5*time.Millisecond, nil)
	w.graceful = func() bool { return true }

	run(t, w, 40*time.Millisecond)

	if n := dev.feeds.Load(); n != 0 {
		t.Errorf("fed %d times while a task was stalled", n)
	}
}

func TestResumesFeedingAfterStall(t *testing.T) {
	dev, health := &fakeDevice{}, &fakeHealth{}
	health.stalled.Store(true)
	w := New(dev, health, 5*time.Millisecond, nil)
	w.graceful = func() bool { return true }

	go func() {
		time.Sleep(20 * time.Millisecond)
		health.stalled.Store(false)
	}()
	run(t, w, 80*time.Millisecond)

	if dev.feeds.Load() == 0 {
		t.Error("never fed after the stall cleared")
	}
}

func TestStaysArmedAfterFailure(t *testing.T) {
	tests := []struct {
		name     string
		graceful bool
		failed   string
	}{
		{"task failed", true, "sensors"},
		{"not a requested stop", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{}
			w := New(dev, &fakeHealth{failed: tt.failed}, 5*time.Millisecond, nil)
			w.graceful = func() bool { return tt.graceful }

			run(t, w, 10*time.Millisecond)

			if !dev.closed || dev.disarmed {
				t.Errorf("closed = %v disarmed = %v, want closed and armed", dev.closed, dev.disarmed)
			}
		})
	}
}

func TestFeedsAsSoonAsRunning(t *testing.T) {
	dev, health := &fakeDevice{}, &fakeHealth{}
	w := New(dev, health, time.Hour, nil)
	w.graceful = func() bool { return true }

	run(t, w, 30*time.Millisecond)

	if n := dev.feeds.Load(); n != 1 {
		t.Errorf("feeds = %d, want one immediately on start", n)
	}
}
