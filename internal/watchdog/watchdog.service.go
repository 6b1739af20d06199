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

// Package watchdog keeps a hardware reset timer from firing for as long
// as every task is making progress.
package watchdog

import (
	"context"
	"slices"
	"time"

	"gbebox/internal/metrics"
	"gbebox/pkg/appctx"
	"gbebox/pkg/logger"
)

// Device is a hardware watchdog. Feed must be called more often than
// the armed timeout. Close with disarm stops the timer; without it the
// board resets once the timeout passes.
type Device interface {
	Feed() error
	Close(disarm bool) error
}

// Health is the scheduler's view of its tasks.
type Health interface {
	Stalled(now time.Time) []string
	Failed() string
}

type Watchdog struct {
	log     *logger.Logger
	dev     Device
	health  Health
	feed    time.Duration
	metrics *metrics.Metrics

	// graceful reports whether the stop was requested rather than caused
	// by a failure
	graceful func() bool
}

func New(dev Device, health Health, feed time.Duration, m *metrics.Metrics) *Watchdog {
	return &Watchdog{
		log:      logger.New("Watchdog"),
		dev:      dev,
		health:   health,
		feed:     feed,
		metrics:  m,
		graceful: appctx.Interrupted,
	}
}

func (w *Watchdog) Run(ctx context.Context) {
	w.log.Info("Running...")
	defer w.log.Info("Stopped")
	defer w.close()

	ticker := time.NewTicker(w.feed)
	defer ticker.Stop()

	// the device is armed before the scheduler starts; feed at once
	var stalled []string
	w.check(time.Now(), &stalled)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.check(now, &stalled)
		}
	}
}

// check feeds the device unless a task is stalled. stalled holds the set
// reported last time, so only changes are logged.
func (w *Watchdog) check(now time.Time, stalled *[]string) {
	current := w.health.Stalled(now)
	if !slices.Equal(current, *stalled) {
		if len(current) > 0 {
			w.log.Error("withholding feed, stalled: %v", current)
		} else {
			w.log.Info("all tasks responsive, feeding")
		}
		*stalled = current
	}
	if len(current) > 0 {
		return
	}
	if err := w.dev.Feed(); err != nil {
		w.log.Error("feed: %v", err)
		return
	}
	w.metrics.WatchdogFed()
}

func (w *Watchdog) close() {
	disarm := w.graceful() && w.health.Failed() == ""
	if !disarm {
		w.log.Warn("leaving watchdog armed")
	}
	if err := w.dev.Close(disarm); err != nil {
		w.log.Error("close: %v", err)
	}
}

// Nop is a Device for boards without a watchdog.
type Nop struct{}

func (Nop) Feed() error        { return nil }
func (Nop) Close(_ bool) error { return nil }
