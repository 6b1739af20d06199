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
	"time"

	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

// Heartbeat periodically refreshes the retained "online" availability
// message while the broker is reachable.
type Heartbeat struct {
	log      *logger.Logger
	conn     *Connectivity
	interval time.Duration
}

func NewHeartbeat(conn *Connectivity, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Heartbeat{log: logger.New("Heartbeat"), conn: conn, interval: interval}
}

func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done := service.Step(ctx)
			err := h.conn.publish(ctx, h.conn.availTopic, []byte(PayloadOnline), true)
			done()
			switch {
			case errors.Is(err, ErrNotConnected):
				h.log.Debug("skipped, broker not connected")
			case err != nil:
				h.log.Warn("publish: %v", err)
			}
		}
	}
}
