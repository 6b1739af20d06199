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
	"sync"
	"time"

	"gbebox/internal/box"
	"gbebox/internal/config"
	"gbebox/internal/events"
	"gbebox/internal/hardware"
	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

var lightChannels = []hardware.Channel{hardware.Red, hardware.Green, hardware.Blue, hardware.White}

// Controller owns the PWM outputs. Every tick it derives the desired
// State from the clock and writes the channels that differ from what the
// hardware last accepted.
type Controller struct {
	log      *logger.Logger
	box      *box.Box
	settings *config.Settings
	out      hardware.Outputs
	tick     time.Duration

	mu      sync.RWMutex
	state   State
	written map[hardware.Channel]uint8
	failing map[hardware.Channel]bool
	primed  bool
}

func New(b *box.Box) *Controller {
	return &Controller{
		log:      logger.New("Actuator"),
		box:      b,
		settings: b.Conf.Settings,
		out:      b.Board.Outputs(),
		tick:     config.Millis(b.Conf.Service.Loops.ActuatorTickMillis),
		written:  make(map[hardware.Channel]uint8),
		failing:  make(map[hardware.Channel]bool),
	}
}

// State returns the last derived state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Run(ctx context.Context) {
	c.log.Info("Running...")
	defer c.log.Info("Stopped")

	// lights may have been left on by a crashed run
	c.zeroLights()
	defer c.zeroLights()

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.step(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) step(ctx context.Context) {
	done := service.Step(ctx)
	defer done()
	c.apply(Derive(c.settings, c.box.Clock.Now()))
}

// apply records next as the current state and writes the outputs that
// need it.
func (c *Controller) apply(next State) {
	c.mu.Lock()
	prev, primed := c.state, c.primed
	c.state, c.primed = next, true
	c.mu.Unlock()

	if !primed || prev.LightsOn != next.LightsOn {
		if next.LightsOn {
			c.log.Info("lights on: r=%d g=%d b=%d w=%d fan=%d", next.Red, next.Green, next.Blue, next.White, next.Fan)
		} else {
			c.log.Info("lights off: fan=%d", next.Fan)
		}
		c.box.Metrics.SetLightsOn(next.LightsOn)
	}

	changed := !primed
	for _, ch := range hardware.Channels {
		if c.write(ch, next.Duty(ch)) {
			changed = true
		}
	}

	if changed {
		c.box.Bus.Publish(events.TopicActuator, events.ActuatorUpdate{
			Red: next.Red, Green: next.Green, Blue: next.Blue, White: next.White, Fan: next.Fan,
			LightsOn: next.LightsOn,
			Time:     c.box.Clock.Now(),
		})
	}
}

// write sets ch to duty unless the hardware already holds it. It reports
// whether a write was accepted.
func (c *Controller) write(ch hardware.Channel, duty uint8) bool {
	c.mu.Lock()
	cur, known := c.written[ch]
	failing := c.failing[ch]
	c.mu.Unlock()
	if known && cur == duty && !failing {
		return false
	}

	err := c.out.Write(ch, duty)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		delete(c.written, ch)
		c.box.Metrics.OutputError(ch.String())
		if !failing {
			c.failing[ch] = true
			c.log.Error("write %s=%d: %v", ch, duty, err)
			c.box.Push(events.Fault)
		}
		return false
	}
	c.written[ch] = duty
	c.box.Metrics.SetDuty(ch.String(), duty)
	if failing {
		delete(c.failing, ch)
		c.log.Info("%s output recovered", ch)
		c.box.Push(events.Recovered)
	}
	return true
}

func (c *Controller) zeroLights() {
	for _, ch := range lightChannels {
		if err := c.out.Write(ch, 0); err != nil {
			c.log.Error("zero %s: %v", ch, err)
			continue
		}
		c.mu.Lock()
		c.written[ch] = 0
		c.mu.Unlock()
		c.box.Metrics.SetDuty(ch.String(), 0)
	}
}
