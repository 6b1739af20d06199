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

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gbebox/internal/box"
	"gbebox/internal/config"
	"gbebox/internal/events"
	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

var ErrNotConnected = errors.New("broker: not connected")

// Connectivity owns the broker session. It connects at startup, then
// watches the link and reconnects after a drop. All delays are fixed.
type Connectivity struct {
	log    *logger.Logger
	box    *box.Box
	client Client

	dataTopic  string
	availTopic string

	retry   time.Duration
	grace   time.Duration
	poll    time.Duration
	timeout time.Duration

	mu    sync.RWMutex
	state events.ConnState
	since time.Time
}

func New(b *box.Box, client Client, boardID string) *Connectivity {
	conf := b.Conf.Service.Broker
	return &Connectivity{
		log:        logger.New("Connectivity"),
		box:        b,
		client:     client,
		dataTopic:  conf.DataTopic,
		availTopic: AvailabilityTopic(conf, boardID),
		retry:      config.Seconds(conf.ConnectRetrySeconds),
		grace:      config.Seconds(conf.GraceSeconds),
		poll:       config.Millis(conf.PollMillis),
		timeout:    config.Seconds(conf.PublishTimeoutSeconds),
		state:      events.Disconnected,
	}
}

// AvailabilityTopic expands the configured availability topic for a board.
func AvailabilityTopic(conf config.BrokerConfig, boardID string) string {
	return fmt.Sprintf(conf.AvailabilityTopic, boardID)
}

func (c *Connectivity) State() events.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Since returns when the current state was entered.
func (c *Connectivity) Since() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.since
}

func (c *Connectivity) setState(s events.ConnState) {
	c.mu.Lock()
	if c.state == s && !c.since.IsZero() {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.since = c.box.Clock.Now()
	since := c.since
	c.mu.Unlock()

	c.log.Info("state: %s", s)
	c.box.Metrics.SetBrokerConnected(s == events.Connected)
	c.box.Bus.Publish(events.TopicConnectivity, events.ConnectivityUpdate{State: s, Since: since})
}

// Publish sends payload on the data topic. It refuses unless connected.
func (c *Connectivity) Publish(ctx context.Context, payload []byte) error {
	return c.publish(ctx, c.dataTopic, payload, false)
}

func (c *Connectivity) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if c.State() != events.Connected {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Publish(ctx, topic, payload, retained)
}

func (c *Connectivity) Run(ctx context.Context) {
	c.log.Info("Running...")
	defer c.log.Info("Stopped")
	defer c.shutdown()

	if !c.connectLoop(ctx) {
		return
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.client.IsConnected() {
			continue
		}

		c.log.Warn("link down, reconnecting in %v", c.grace)
		c.setState(events.Disconnected)
		c.box.Push(events.Fault)
		if !sleepCtx(ctx, c.grace) {
			return
		}
		if !c.connectLoop(ctx) {
			return
		}
	}
}

// connectLoop retries with a fixed delay until connected. It returns
// false if ctx ends first.
func (c *Connectivity) connectLoop(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		c.setState(events.ConnectingState)
		c.box.Push(events.Connecting)
		c.box.Metrics.ConnectAttempt()

		done := service.Step(ctx)
		err := c.client.Connect(ctx)
		done()

		if err == nil {
			c.setState(events.Connected)
			c.box.Push(events.Recovered)
			c.log.Info("connected after %d attempt(s)", attempt)
			c.announce(ctx, PayloadOnline)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.log.Warn("connect attempt %d failed: %v", attempt, err)
		c.setState(events.Disconnected)
		if !sleepCtx(ctx, c.retry) {
			return false
		}
	}
}

// announce publishes a retained availability message.
func (c *Connectivity) announce(ctx context.Context, payload string) {
	if err := c.publish(ctx, c.availTopic, []byte(payload), true); err != nil {
		c.log.Warn("availability %s: %v", payload, err)
	}
}

func (c *Connectivity) shutdown() {
	if c.State() == events.Connected {
		// the run ctx is already cancelled here
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		c.announce(ctx, PayloadOffline)
		cancel()
	}
	c.client.Disconnect()
	c.setState(events.Disconnected)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
