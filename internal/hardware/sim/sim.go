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

// Package sim is an in-memory board for bench runs and tests. Sensors can
// be unplugged and replugged at runtime.
package sim

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"gbebox/internal/hardware"
	"gbebox/pkg/logger"
)

type Board struct {
	log *logger.Logger

	mu      sync.Mutex
	duty    map[hardware.Channel]uint8
	pixel   [3]uint8
	present map[hardware.SensorKind]bool
	// generation increments on every unplug so stale handles fail
	generation map[hardware.SensorKind]int
	lastTake   time.Time
	closed     bool
}

func New() *Board {
	b := &Board{
		log:        logger.New("SimBoard"),
		duty:       make(map[hardware.Channel]uint8),
		present:    make(map[hardware.SensorKind]bool),
		generation: make(map[hardware.SensorKind]int),
		lastTake:   time.Now(),
	}
	for _, k := range hardware.SensorKinds {
		b.present[k] = true
	}
	return b
}

func (b *Board) Name() string   { return "sim" }
func (b *Board) Connect() error { return nil }

func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Board) Outputs() hardware.Outputs { return outputs{b} }
func (b *Board) Pixel() hardware.Pixel     { return pixel{b} }
func (b *Board) Tach() hardware.Tachometer { return tach{b} }

// Duty returns the last duty written to ch.
func (b *Board) Duty(ch hardware.Channel) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duty[ch]
}

// PixelRGB returns the last colour shown on the pixel.
func (b *Board) PixelRGB() (r, g, bl uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pixel[0], b.pixel[1], b.pixel[2]
}

// SetPresent plugs or unplugs a sensor.
func (b *Board) SetPresent(kind hardware.SensorKind, present bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.present[kind] && !present {
		b.generation[kind]++
	}
	b.present[kind] = present
	b.log.Info("%s sensor present=%v", kind, present)
}

type outputs struct{ b *Board }

func (o outputs) Write(ch hardware.Channel, duty uint8) error {
	o.b.mu.Lock()
	defer o.b.mu.Unlock()
	o.b.duty[ch] = duty
	return nil
}

type pixel struct{ b *Board }

func (p pixel) SetRGB(r, g, bl uint8) error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.pixel = [3]uint8{r, g, bl}
	return nil
}

// tach simulates a 2-pulse-per-revolution fan whose speed follows duty.
type tach struct{ b *Board }

func (t tach) Take() uint64 {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(t.b.lastTake)
	t.b.lastTake = now
	rpm := float64(t.b.duty[hardware.Fan]) / 255 * 3000
	return uint64(rpm / 60 * 2 * elapsed.Seconds())
}

func (b *Board) OpenSensor(kind hardware.SensorKind) (hardware.Sensor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.present[kind] {
		return nil, fmt.Errorf("%s: %w", kind, hardware.ErrNotPresent)
	}
	return &sensor{b: b, kind: kind, gen: b.generation[kind]}, nil
}

type sensor struct {
	b    *Board
	kind hardware.SensorKind
	gen  int
}

func (s *sensor) Sample() ([]float64, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if !s.b.present[s.kind] || s.b.generation[s.kind] != s.gen {
		return nil, fmt.Errorf("%s: i2c read: %w", s.kind, hardware.ErrNotPresent)
	}

	jitter := func(v, spread float64) float64 { return v + (rand.Float64()*2-1)*spread }
	switch s.kind {
	case hardware.Power:
		lights := int(s.b.duty[hardware.Red]) + int(s.b.duty[hardware.Green]) +
			int(s.b.duty[hardware.Blue]) + int(s.b.duty[hardware.White])
		mA := jitter(80+float64(lights)*4, 5)
		v := jitter(24, 0.1)
		return []float64{v, mA, v * mA / 1000}, nil
	case hardware.Soil:
		return []float64{jitter(600, 20), jitter(21, 0.5)}, nil
	case hardware.Air:
		return []float64{jitter(65, 2), jitter(23, 0.5)}, nil
	}
	return nil, fmt.Errorf("unknown sensor kind %q", s.kind)
}

func (s *sensor) Close() error { return nil }
