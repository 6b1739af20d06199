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

package raspi

import (
	"sync"
	"testing"
	"time"

	"gbebox/internal/hardware"
	"gbebox/pkg/logger"
)

type fakeAdaptor struct {
	mu     sync.Mutex
	pwm    map[string]byte
	level  int
	reads  int
	closed bool
}

func (f *fakeAdaptor) Connect() error { return nil }
func (f *fakeAdaptor) Finalize() error {
	f.closed = true
	return nil
}
func (f *fakeAdaptor) PwmWrite(pin string, val byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pwm[pin] = val
	return nil
}

// DigitalRead toggles the pin on every call, one rising edge per two reads.
func (f *fakeAdaptor) DigitalRead(string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	f.level ^= 1
	return f.level, nil
}

func newTestBoard() (*Board, *fakeAdaptor) {
	fa := &fakeAdaptor{pwm: map[string]byte{}}
	hw := hardware.DefaultMap()
	hw.Tach.PollMicros = 100
	return &Board{log: logger.New("Raspi"), hw: hw, a: fa, tach: &tach{}}, fa
}

func TestOutputsUseMappedPins(t *testing.T) {
	b, fa := newTestBoard()
	if err := b.Outputs().Write(hardware.Fan, 200); err != nil {
		t.Fatal(err)
	}
	if err := b.Pixel().SetRGB(1, 2, 3); err != nil {
		t.Fatal(err)
	}
	if fa.pwm["18"] != 200 {
		t.Errorf("fan pin = %d, want 200", fa.pwm["18"])
	}
	if fa.pwm["29"] != 1 || fa.pwm["31"] != 2 || fa.pwm["33"] != 3 {
		t.Errorf("pixel pins = %v", fa.pwm)
	}
}

func TestTachCountsRisingEdges(t *testing.T) {
	b, fa := newTestBoard()
	if err := b.Connect(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	fa.mu.Lock()
	reads := fa.reads
	fa.mu.Unlock()
	pulses := b.Tach().Take()
	if pulses == 0 || pulses != uint64((reads+1)/2) {
		t.Errorf("pulses = %d after %d reads", pulses, reads)
	}
	if b.Tach().Take() != 0 {
		t.Error("Take did not reset the count")
	}
	if !fa.closed {
		t.Error("Close did not finalize the adaptor")
	}
}
