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

package sensors

import (
	"context"
	"sync"
	"testing"
	"time"

	"gbebox/internal/box"
	"gbebox/internal/config"
	"gbebox/internal/events"
	"gbebox/internal/hardware"
	"gbebox/internal/hardware/sim"
	"gbebox/pkg/eventbus"
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
func (wallClock) Trusted() bool  { return true }

type statusLog struct {
	mu     sync.Mutex
	events []events.Status
}

func (s *statusLog) Push(ev events.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *statusLog) count(ev events.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == ev {
			n++
		}
	}
	return n
}

func newMonitor(board hardware.Board) (*Monitor, *statusLog) {
	st := &statusLog{}
	b := &box.Box{
		Conf: &config.Config{
			Service: &config.Service{Loops: config.LoopConfig{SensorPollMillis: 2}},
		},
		Bus:    eventbus.New(),
		Clock:  wallClock{},
		Status: st,
		Board:  board,
	}
	return New(b), st
}

func TestAbsentAtStartRaisesOneFault(t *testing.T) {
	board := sim.New()
	board.SetPresent(hardware.Air, false)
	m, st := newMonitor(board)

	m.Start()
	for i := 0; i < 5; i++ {
		m.pollOnce()
	}

	if n := st.count(events.Fault); n != 1 {
		t.Errorf("Fault events = %d, want 1", n)
	}
	if n := st.count(events.Recovered); n != 0 {
		t.Errorf("Recovered events = %d, want 0", n)
	}
	r := m.Readings()
	if r.AirHumidity != Unavailable || r.AirTemp != Unavailable {
		t.Errorf("air readings = %v/%v, want sentinel", r.AirHumidity, r.AirTemp)
	}
	if r.SoilMoisture == Unavailable || r.Volts == Unavailable {
		t.Errorf("connected sensors report sentinel: %+v", r)
	}
	if h := m.Health()["air"]; h.Connected || h.Reason == "" {
		t.Errorf("air health = %+v", h)
	}
}

func TestHotPlugOneEventPerTransition(t *testing.T) {
	board := sim.New()
	m, st := newMonitor(board)
	m.Start()

	board.SetPresent(hardware.Soil, false)
	for i := 0; i < 5; i++ {
		m.pollOnce()
	}
	if n := st.count(events.Fault); n != 1 {
		t.Fatalf("Fault events after unplug = %d, want 1", n)
	}
	if m.Readings().SoilMoisture != Unavailable {
		t.Error("soil reading not reset to sentinel")
	}

	board.SetPresent(hardware.Soil, true)
	for i := 0; i < 5; i++ {
		m.pollOnce()
	}
	if n := st.count(events.Recovered); n != 1 {
		t.Errorf("Recovered events after replug = %d, want 1", n)
	}
	if n := st.count(events.Fault); n != 1 {
		t.Errorf("Fault events after replug = %d, want 1", n)
	}
	if m.Readings().SoilMoisture == Unavailable {
		t.Error("soil reading still unavailable after replug")
	}

	v, ok := m.box.Bus.GetLast(events.TopicSensors)
	if !ok || !v.(events.SensorUpdate).Connected {
		t.Errorf("last sensor update = %+v", v)
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	board := sim.New()
	board.SetPresent(hardware.Power, false)
	m, st := newMonitor(board)
	m.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	board.SetPresent(hardware.Power, true)
	deadline := time.After(time.Second)
	for st.count(events.Recovered) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("power sensor never recovered")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
	if !m.Health()["power"].Connected {
		t.Error("power not connected after recovery")
	}
}

type fixedTach struct{ n uint64 }

func (f fixedTach) Take() uint64 { return f.n }

type tachBoard struct {
	*sim.Board
	tach fixedTach
}

func (b tachBoard) Tach() hardware.Tachometer { return b.tach }

func TestFanRPM(t *testing.T) {
	m, _ := newMonitor(tachBoard{Board: sim.New(), tach: fixedTach{n: 100}})
	m.tachLast = time.Now().Add(-1 * time.Second)

	// 100 pulses in ~1000 ms at two pulses per revolution is ~3000 rpm
	rpm := m.FanRPM()
	if rpm < 2900 || rpm > 3000 {
		t.Errorf("FanRPM() = %v, want about 3000", rpm)
	}
}
