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
	"time"

	"gbebox/internal/box"
	"gbebox/internal/config"
	"gbebox/internal/events"
	"gbebox/internal/hardware"
	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

// Health is the connection state of one sensor.
type Health struct {
	Connected bool      `json:"connected"`
	Reason    string    `json:"reason,omitempty"`
	Since     time.Time `json:"since"`
}

type slot struct {
	kind   hardware.SensorKind
	dev    hardware.Sensor
	health Health
	values []float64
}

// Monitor owns the sensor handles. It polls every sensor, reopens the
// ones that are missing and drops the ones that stop answering. Each
// connect or disconnect raises exactly one status event.
type Monitor struct {
	log   *logger.Logger
	box   *box.Box
	board hardware.Board
	poll  time.Duration

	mu    sync.RWMutex
	slots []*slot

	tachMu   sync.Mutex
	tachLast time.Time
}

func New(b *box.Box) *Monitor {
	m := &Monitor{
		log:      logger.New("Sensors"),
		box:      b,
		board:    b.Board,
		poll:     config.Millis(b.Conf.Service.Loops.SensorPollMillis),
		tachLast: time.Now(),
	}
	for _, kind := range hardware.SensorKinds {
		m.slots = append(m.slots, &slot{kind: kind})
	}
	return m
}

// Start probes every sensor once. A sensor missing at boot starts out
// disconnected and raises a Fault.
func (m *Monitor) Start() {
	for _, s := range m.slots {
		dev, err := m.board.OpenSensor(s.kind)
		if err != nil {
			m.disconnect(s, err.Error())
			continue
		}
		m.mu.Lock()
		s.dev = dev
		s.health = Health{Connected: true, Since: m.box.Clock.Now()}
		m.mu.Unlock()
		m.box.Metrics.SetSensorConnected(string(s.kind), true)
		m.log.Info("%s sensor connected", s.kind)
		m.sample(s)
	}
}

func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("Running...")
	defer m.log.Info("Stopped")
	defer m.closeAll()

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done := service.Step(ctx)
			m.pollOnce()
			done()
		}
	}
}

func (m *Monitor) pollOnce() {
	for _, s := range m.slots {
		m.mu.RLock()
		present := s.dev != nil
		m.mu.RUnlock()

		if !present {
			dev, err := m.board.OpenSensor(s.kind)
			if err != nil {
				m.log.Debug("%s sensor still absent: %v", s.kind, err)
				continue
			}
			m.connect(s, dev)
		}
		m.sample(s)
	}
}

// sample reads s and stores its values; a failed read disconnects it.
func (m *Monitor) sample(s *slot) {
	m.mu.RLock()
	dev := s.dev
	m.mu.RUnlock()
	if dev == nil {
		return
	}

	values, err := dev.Sample()
	if err != nil {
		m.disconnect(s, err.Error())
		return
	}

	m.mu.Lock()
	s.values = values
	m.mu.Unlock()
	for i, name := range fields[s.kind] {
		if i < len(values) {
			m.box.Metrics.SetReading(name, values[i])
		}
	}
}

// connect is the Disconnected -> Connected transition.
func (m *Monitor) connect(s *slot, dev hardware.Sensor) {
	m.mu.Lock()
	if s.health.Connected {
		m.mu.Unlock()
		return
	}
	s.dev = dev
	s.health = Health{Connected: true, Since: m.box.Clock.Now()}
	m.mu.Unlock()

	m.log.Info("%s sensor connected", s.kind)
	m.box.Metrics.SetSensorConnected(string(s.kind), true)
	m.publish(s, true, "")
	m.box.Push(events.Recovered)
}

// disconnect is the Connected -> Disconnected transition, and the initial
// state of a sensor absent at boot.
func (m *Monitor) disconnect(s *slot, reason string) {
	m.mu.Lock()
	dev := s.dev
	wasConnected := s.health.Connected
	initial := s.health.Since.IsZero()
	s.dev = nil
	s.values = nil
	if !wasConnected && !initial {
		m.mu.Unlock()
		return
	}
	s.health = Health{Connected: false, Reason: reason, Since: m.box.Clock.Now()}
	m.mu.Unlock()

	if dev != nil {
		dev.Close()
	}
	if initial {
		m.log.Warn("%s sensor not found: %s", s.kind, reason)
	} else {
		m.log.Error("%s sensor disconnected: %s", s.kind, reason)
	}
	m.box.Metrics.SetSensorConnected(string(s.kind), false)
	m.publish(s, false, reason)
	m.box.Push(events.Fault)
}

func (m *Monitor) publish(s *slot, connected bool, reason string) {
	m.box.Bus.Publish(events.TopicSensors, events.SensorUpdate{
		Sensor:    string(s.kind),
		Connected: connected,
		Reason:    reason,
		Time:      m.box.Clock.Now(),
	})
}

func (m *Monitor) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.dev != nil {
			s.dev.Close()
			s.dev = nil
		}
	}
}

// Readings returns a copy of the latest values. Fields of disconnected
// sensors are Unavailable.
func (m *Monitor) Readings() Readings {
	r := UnavailableReadings()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.slots {
		if !s.health.Connected {
			continue
		}
		for i, name := range fields[s.kind] {
			if i < len(s.values) {
				*r.field(name) = s.values[i]
			}
		}
	}
	return r
}

// Health returns the connection state of every sensor.
func (m *Monitor) Health() map[string]Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Health, len(m.slots))
	for _, s := range m.slots {
		out[string(s.kind)] = s.health
	}
	return out
}

// FanRPM returns the average fan speed since the previous call. The tach
// gives two pulses per revolution.
func (m *Monitor) FanRPM() float64 {
	pulses := m.board.Tach().Take()

	m.tachMu.Lock()
	now := time.Now()
	elapsed := now.Sub(m.tachLast)
	m.tachLast = now
	m.tachMu.Unlock()

	ms := float64(elapsed.Milliseconds())
	if ms <= 0 {
		return 0
	}
	return float64(pulses) / ms * 30000
}
