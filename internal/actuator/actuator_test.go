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

package actuator

import (
	"context"
	"errors"
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

func settings() *config.Settings {
	return &config.Settings{
		LightsOn: "08:00", LightsOff: "20:00",
		Red: 200, Green: 89, Blue: 94, White: 146,
		FanLightsOn: 255, FanLightsOff: 40,
	}
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2025, 3, 14, hh, mm, ss, 0, time.UTC)
}

func TestDeriveWindowBoundaries(t *testing.T) {
	s := settings()
	tests := []struct {
		name string
		now  time.Time
		on   bool
	}{
		{"midnight", at(0, 0, 0), false},
		{"just before lead", at(7, 58, 59), false},
		{"lead opens window", at(7, 59, 0), true},
		{"configured on", at(8, 0, 0), true},
		{"midday", at(12, 0, 0), true},
		{"last on second", at(19, 58, 59), true},
		{"lead closes window", at(19, 59, 0), false},
		{"configured off", at(20, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(s, tt.now)
			if got.LightsOn != tt.on {
				t.Fatalf("LightsOn = %v, want %v", got.LightsOn, tt.on)
			}
			if tt.on {
				want := State{Red: 200, Green: 89, Blue: 94, White: 146, Fan: 255, LightsOn: true}
				if got != want {
					t.Errorf("Derive() = %+v, want %+v", got, want)
				}
			} else if got != (State{Fan: 40}) {
				t.Errorf("Derive() = %+v, want lights off with fan 40", got)
			}
		})
	}
}

func TestDeriveClampsToCeilings(t *testing.T) {
	s := settings()
	s.Red, s.Green, s.Blue, s.White = 255, 255, 255, 255
	s.FanLightsOn = 300
	got := Derive(s, at(12, 0, 0))
	want := State{Red: 200, Green: 89, Blue: 94, White: 146, Fan: 255, LightsOn: true}
	if got != want {
		t.Errorf("Derive() = %+v, want %+v", got, want)
	}
}

func TestDeriveWrapsMidnight(t *testing.T) {
	s := settings()
	s.LightsOn, s.LightsOff = "22:00", "06:00"
	tests := []struct {
		now time.Time
		on  bool
	}{
		{at(21, 58, 59), false},
		{at(21, 59, 0), true},
		{at(23, 30, 0), true},
		{at(0, 0, 0), true},
		{at(5, 58, 59), true},
		{at(5, 59, 0), false},
		{at(12, 0, 0), false},
	}
	for _, tt := range tests {
		if got := Derive(s, tt.now).LightsOn; got != tt.on {
			t.Errorf("%s: LightsOn = %v, want %v", tt.now.Format("15:04:05"), got, tt.on)
		}
	}
}

func TestDeriveMidnightOnTime(t *testing.T) {
	s := settings()
	s.LightsOn, s.LightsOff = "0:00", "12:00"
	if !Derive(s, at(23, 59, 0)).LightsOn {
		t.Error("window starting at 00:00 should open at 23:59")
	}
	if Derive(s, at(23, 58, 59)).LightsOn {
		t.Error("window should be closed at 23:58:59")
	}
	if Derive(s, at(11, 59, 0)).LightsOn {
		t.Error("window should close at 11:59")
	}
}

func TestDeriveEmptyWindow(t *testing.T) {
	s := settings()
	s.LightsOn, s.LightsOff = "08:00", "08:00"
	for h := 0; h < 24; h++ {
		if Derive(s, at(h, 0, 0)).LightsOn {
			t.Fatalf("equal on/off opened the window at %02d:00", h)
		}
	}
}

func TestDeriveUsesUTCOffset(t *testing.T) {
	s := settings()
	s.UTCOffset = -5
	// 12:59 UTC is 07:59 at UTC-5
	if !Derive(s, at(12, 59, 0)).LightsOn {
		t.Error("expected lights on at 07:59 local")
	}
	if Derive(s, at(12, 58, 0)).LightsOn {
		t.Error("expected lights off at 07:58 local")
	}
}

func TestDeriveDeterministic(t *testing.T) {
	s := settings()
	now := at(9, 30, 0)
	if Derive(s, now) != Derive(s, now) {
		t.Error("Derive is not deterministic")
	}
}

// Lights scheduled 08:00-20:00 at full ceilings, fan 255 on / 40 off.
func TestDailyCycle(t *testing.T) {
	s := settings()
	checks := []struct {
		now  time.Time
		want State
	}{
		{at(7, 58, 0), State{Fan: 40}},
		{at(12, 0, 0), State{Red: 200, Green: 89, Blue: 94, White: 146, Fan: 255, LightsOn: true}},
		{at(19, 58, 0), State{Red: 200, Green: 89, Blue: 94, White: 146, Fan: 255, LightsOn: true}},
		{at(19, 59, 0), State{Fan: 40}},
	}
	for _, c := range checks {
		if got := Derive(s, c.now); got != c.want {
			t.Errorf("%s: Derive() = %+v, want %+v", c.now.Format("15:04"), got, c.want)
		}
	}
}

// ----- controller -----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}
func (f *fakeClock) Trusted() bool { return true }
func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

type recordingOutputs struct {
	mu     sync.Mutex
	writes map[hardware.Channel]int
	duty   map[hardware.Channel]uint8
	fail   map[hardware.Channel]bool
}

func newRecordingOutputs() *recordingOutputs {
	return &recordingOutputs{
		writes: map[hardware.Channel]int{},
		duty:   map[hardware.Channel]uint8{},
		fail:   map[hardware.Channel]bool{},
	}
}

func (r *recordingOutputs) Write(ch hardware.Channel, duty uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[ch] {
		return errors.New("i/o error")
	}
	r.writes[ch]++
	r.duty[ch] = duty
	return nil
}

func (r *recordingOutputs) get(ch hardware.Channel) (int, uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[ch], r.duty[ch]
}

type statusLog struct {
	mu     sync.Mutex
	events []events.Status
}

func (s *statusLog) Push(ev events.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func newController(t *testing.T, now time.Time) (*Controller, *recordingOutputs, *fakeClock, *statusLog) {
	t.Helper()
	clk := &fakeClock{now: now}
	st := &statusLog{}
	b := &box.Box{
		Conf: &config.Config{
			Settings: settings(),
			Service:  &config.Service{Loops: config.LoopConfig{ActuatorTickMillis: 2}},
		},
		Bus:    eventbus.New(),
		Clock:  clk,
		Status: st,
		Board:  sim.New(),
	}
	c := New(b)
	out := newRecordingOutputs()
	c.out = out
	return c, out, clk, st
}

func TestControllerWritesOnlyChanges(t *testing.T) {
	c, out, clk, _ := newController(t, at(12, 0, 0))

	c.apply(Derive(c.settings, clk.Now()))
	c.apply(Derive(c.settings, clk.Now()))
	for _, ch := range hardware.Channels {
		if n, _ := out.get(ch); n != 1 {
			t.Errorf("%s written %d times, want 1", ch, n)
		}
	}

	clk.Set(at(19, 59, 0))
	c.apply(Derive(c.settings, clk.Now()))
	if n, d := out.get(hardware.Red); n != 2 || d != 0 {
		t.Errorf("red: %d writes, duty %d; want 2 writes, duty 0", n, d)
	}
	if n, d := out.get(hardware.Fan); n != 2 || d != 40 {
		t.Errorf("fan: %d writes, duty %d; want 2 writes, duty 40", n, d)
	}
	if c.State().LightsOn {
		t.Error("State() still reports lights on")
	}
}

func TestControllerRetriesFailedWrite(t *testing.T) {
	c, out, clk, st := newController(t, at(12, 0, 0))

	out.fail[hardware.Blue] = true
	c.apply(Derive(c.settings, clk.Now()))
	c.apply(Derive(c.settings, clk.Now()))

	out.mu.Lock()
	out.fail[hardware.Blue] = false
	out.mu.Unlock()
	c.apply(Derive(c.settings, clk.Now()))
	c.apply(Derive(c.settings, clk.Now()))

	if n, d := out.get(hardware.Blue); n != 1 || d != 94 {
		t.Errorf("blue: %d writes, duty %d; want 1 write, duty 94", n, d)
	}
	want := []events.Status{events.Fault, events.Recovered}
	if len(st.events) != len(want) || st.events[0] != want[0] || st.events[1] != want[1] {
		t.Errorf("status events = %v, want %v", st.events, want)
	}
}

func TestControllerPublishesTransitions(t *testing.T) {
	c, _, clk, _ := newController(t, at(12, 0, 0))
	c.apply(Derive(c.settings, clk.Now()))

	v, ok := c.box.Bus.GetLast(events.TopicActuator)
	if !ok {
		t.Fatal("no actuator update published")
	}
	if up := v.(events.ActuatorUpdate); !up.LightsOn || up.White != 146 {
		t.Errorf("update = %+v", up)
	}
}

func TestControllerRunZeroesLightsOnStop(t *testing.T) {
	c, out, _, _ := newController(t, at(12, 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if _, d := out.get(hardware.White); d == 146 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("lights never switched on")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	for _, ch := range lightChannels {
		if _, d := out.get(ch); d != 0 {
			t.Errorf("%s = %d after stop, want 0", ch, d)
		}
	}
	if _, d := out.get(hardware.Fan); d != 255 {
		t.Errorf("fan = %d after stop, want 255", d)
	}
}
