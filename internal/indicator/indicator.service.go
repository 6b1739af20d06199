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

package indicator

import (
	"context"
	"sync"
	"time"

	"gbebox/internal/events"
	"gbebox/internal/hardware"
	"gbebox/pkg/eventbus"
	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

type Color struct{ R, G, B uint8 }

var (
	Off    = Color{}
	Red    = Color{255, 0, 0}
	Green  = Color{0, 255, 0}
	Blue   = Color{0, 0, 255}
	Yellow = Color{255, 255, 0}
)

// EventColor maps each status event to the colour of its pulse.
var EventColor = map[events.Status]Color{
	events.Recovered:  Green,
	events.Fault:      Red,
	events.Connecting: Blue,
}

// ambient colours shown between pulses, per broker state
var connAmbient = map[events.ConnState]Color{
	events.Disconnected:    {16, 0, 0},
	events.ConnectingState: {0, 0, 16},
	events.Connected:       {0, 16, 0},
}

const levels = 256

// Indicator drives the status pixel. Events are kept on a stack and shown
// newest first, one fade in and out each; none are merged or dropped.
type Indicator struct {
	log  *logger.Logger
	px   hardware.Pixel
	bus  *eventbus.Bus
	step time.Duration

	mu      sync.Mutex
	stack   []events.Status
	ambient Color
	wake    chan struct{}

	pixelFailed bool
}

func New(px hardware.Pixel, bus *eventbus.Bus, step time.Duration) *Indicator {
	if step <= 0 {
		step = 4 * time.Millisecond
	}
	return &Indicator{
		log:  logger.New("Indicator"),
		px:   px,
		bus:  bus,
		step: step,
		wake: make(chan struct{}, 1),
	}
}

// Push queues ev for display. It never blocks.
func (ind *Indicator) Push(ev events.Status) {
	ind.mu.Lock()
	ind.stack = append(ind.stack, ev)
	ind.mu.Unlock()
	ind.signal()
}

// SetAmbient changes the steady colour shown between pulses.
func (ind *Indicator) SetAmbient(c Color) {
	ind.mu.Lock()
	ind.ambient = c
	ind.mu.Unlock()
	ind.signal()
}

// Pending returns the number of events not yet shown.
func (ind *Indicator) Pending() int {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return len(ind.stack)
}

func (ind *Indicator) signal() {
	select {
	case ind.wake <- struct{}{}:
	default:
	}
}

// pop removes the newest pending event.
func (ind *Indicator) pop() (events.Status, bool) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	n := len(ind.stack)
	if n == 0 {
		return 0, false
	}
	ev := ind.stack[n-1]
	ind.stack = ind.stack[:n-1]
	return ev, true
}

func (ind *Indicator) Run(ctx context.Context) {
	ind.log.Info("Running...")
	defer ind.log.Info("Stopped")
	defer ind.show(Off)

	var connCh <-chan eventbus.Event
	if ind.bus != nil {
		connCh, _ = ind.bus.Subscribe(ctx, events.TopicConnectivity, true)
	}

	done := service.Step(ctx)
	ind.pulse(ctx, Blue)
	ind.pulse(ctx, Yellow)
	done()

	for {
		ind.drain(ctx)
		ind.show(ind.currentAmbient())

		select {
		case <-ctx.Done():
			return
		case <-ind.wake:
		case ev, ok := <-connCh:
			if !ok {
				connCh = nil
				continue
			}
			if up, ok := ev.(events.ConnectivityUpdate); ok {
				ind.SetAmbient(connAmbient[up.State])
			}
		}
	}
}

func (ind *Indicator) currentAmbient() Color {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.ambient
}

// drain shows every pending event, newest first.
func (ind *Indicator) drain(ctx context.Context) {
	for ctx.Err() == nil {
		ev, ok := ind.pop()
		if !ok {
			return
		}
		done := service.Step(ctx)
		ind.pulse(ctx, EventColor[ev])
		done()
	}
}

// pulse fades c in over 256 levels and back out.
func (ind *Indicator) pulse(ctx context.Context, c Color) {
	ticker := time.NewTicker(ind.step)
	defer ticker.Stop()

	for i := 0; i < 2*levels-1; i++ {
		level := i
		if i >= levels {
			level = 2*(levels-1) - i
		}
		ind.show(scale(c, level))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func scale(c Color, level int) Color {
	f := func(v uint8) uint8 { return uint8(int(v) * level / (levels - 1)) }
	return Color{f(c.R), f(c.G), f(c.B)}
}

func (ind *Indicator) show(c Color) {
	err := ind.px.SetRGB(c.R, c.G, c.B)
	switch {
	case err != nil && !ind.pixelFailed:
		ind.pixelFailed = true
		ind.log.Error("status pixel: %v", err)
	case err == nil && ind.pixelFailed:
		ind.pixelFailed = false
		ind.log.Info("status pixel recovered")
	}
}
