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

package pipeline

import (
	"context"
	"time"

	"gbebox/internal/actuator"
	"gbebox/internal/backlog"
	"gbebox/internal/box"
	"gbebox/internal/config"
	"gbebox/internal/events"
	"gbebox/internal/sensors"
	"gbebox/internal/telemetry"
	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

type Outputs interface {
	State() actuator.State
}

type Sensors interface {
	Readings() sensors.Readings
	FanRPM() float64
}

type Link interface {
	State() events.ConnState
	Publish(ctx context.Context, payload []byte) error
}

type Recorder interface {
	Record(ctx context.Context, snap telemetry.Snapshot) error
	Prune(ctx context.Context, keep int) (int64, error)
}

// Deps are the collaborators a Pipeline reads from and writes to.
// History may be nil.
type Deps struct {
	Outputs Outputs
	Sensors Sensors
	Link    Link
	Backlog *backlog.Store
	Journal *telemetry.Journal
	History Recorder
}

// Pipeline samples the chamber on a fixed interval and delivers each
// snapshot at least once: to the broker if it can, otherwise to the
// backlog for a later replay.
type Pipeline struct {
	log      *logger.Logger
	box      *box.Box
	board    string
	deps     Deps
	interval time.Duration
	keep     int
	history  int
}

func New(b *box.Box, boardID string, deps Deps) *Pipeline {
	conf := b.Conf.Service.Pipeline
	return &Pipeline{
		log:      logger.New("Pipeline"),
		box:      b,
		board:    boardID,
		deps:     deps,
		interval: config.Seconds(conf.IntervalSeconds),
		keep:     conf.BacklogRetention,
		history:  conf.HistoryRetention,
	}
}

func (p *Pipeline) Run(ctx context.Context) {
	p.log.Info("Running...")
	defer p.log.Info("Stopped")

	if n, err := p.deps.Backlog.Len(); err == nil {
		p.box.Metrics.SetBacklog(n)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle takes one snapshot and tries to deliver it along with any
// backlog. Each publish is its own scheduler step.
func (p *Pipeline) Cycle(ctx context.Context) {
	done := service.Step(ctx)
	snap, err := telemetry.New(p.board, p.box.Clock, p.box.Conf.Settings, telemetry.Sample{
		Outputs:  p.deps.Outputs.State(),
		Readings: p.deps.Sensors.Readings(),
		FanRPM:   p.deps.Sensors.FanRPM(),
	})
	if err != nil {
		done()
		p.log.Error("snapshot: %v", err)
		return
	}
	p.record(ctx, snap)
	p.box.Bus.Publish(events.TopicTelemetry, snap)
	done()

	if p.deps.Link.State() == events.Connected {
		p.replay(ctx)
	}

	done = service.Step(ctx)
	p.deliver(ctx, snap)
	if n, err := p.deps.Backlog.Len(); err == nil {
		p.box.Metrics.SetBacklog(n)
	}
	done()
}

// record writes the local copies. Failures here never block delivery.
func (p *Pipeline) record(ctx context.Context, snap telemetry.Snapshot) {
	if err := p.deps.Journal.Append(snap); err != nil {
		p.log.Error("journal: %v", err)
	}
	if p.deps.History != nil {
		if err := p.deps.History.Record(ctx, snap); err != nil {
			p.log.Error("history: %v", err)
		}
		if p.history > 0 {
			if n, err := p.deps.History.Prune(ctx, p.history); err != nil {
				p.log.Error("history prune: %v", err)
			} else if n > 0 {
				p.log.Debug("history: pruned %d", n)
			}
		}
	}
}

// replay publishes backlog entries oldest first and stops at the first
// failure, leaving it and everything after it for the next cycle.
func (p *Pipeline) replay(ctx context.Context) {
	done := service.Step(ctx)
	items, err := p.deps.Backlog.List()
	done()
	if err != nil {
		p.log.Error("backlog: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	sent := 0
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		if !p.replayOne(ctx, it) {
			break
		}
		sent++
	}
	p.log.Info("replayed %d of %d backlog entries", sent, len(items))
}

// replayOne publishes a single backlog entry and deletes it once sent.
func (p *Pipeline) replayOne(ctx context.Context, it backlog.Item) bool {
	done := service.Step(ctx)
	defer done()

	err := p.publish(ctx, it.Snapshot)
	p.box.Metrics.Publish("replay", err)
	if err != nil {
		p.log.Warn("replay %s: %v", it.Name, err)
		return false
	}
	if err := p.deps.Backlog.Delete(it.Name); err != nil {
		// sent but still stored: it will go out again
		p.log.Error("backlog delete %s: %v", it.Name, err)
	}
	return true
}

// deliver publishes snap, or persists it if that is not possible.
func (p *Pipeline) deliver(ctx context.Context, snap telemetry.Snapshot) {
	err := p.publish(ctx, snap)
	p.box.Metrics.Publish("fresh", err)
	if err == nil {
		p.log.Debug("published %s", snap.ID)
		return
	}

	p.log.Warn("publish %s: %v", snap.ID, err)
	name, err := p.deps.Backlog.Put(snap)
	if err != nil {
		p.log.Error("backlog: %v", err)
		return
	}
	p.log.Info("saved %s to backlog", name)

	if _, err := p.deps.Backlog.Cleanup(p.keep); err != nil {
		p.log.Error("backlog cleanup: %v", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, snap telemetry.Snapshot) error {
	payload, err := snap.Payload()
	if err != nil {
		return err
	}
	return p.deps.Link.Publish(ctx, payload)
}
