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

// Package box carries the process-wide collaborators every task is built
// from.
package box

import (
	"time"

	"gbebox/internal/config"
	"gbebox/internal/events"
	"gbebox/internal/hardware"
	"gbebox/internal/metrics"
	"gbebox/pkg/eventbus"
)

// Clock is the read side of the box clock.
type Clock interface {
	Now() time.Time
	Trusted() bool
}

type Box struct {
	Conf    *config.Config
	Bus     *eventbus.Bus
	Clock   Clock
	Status  events.StatusSink
	Metrics *metrics.Metrics
	Board   hardware.Board
}

// Push forwards a status event to the indicator, if one is attached.
func (b *Box) Push(s events.Status) {
	b.Metrics.StatusEvent(s.String())
	if b.Status != nil {
		b.Status.Push(s)
	}
}
