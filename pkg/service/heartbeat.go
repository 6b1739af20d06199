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

package service

import (
	"context"
	"sync/atomic"
	"time"
)

// heartbeat records when the current step of a task began.
// busySince is zero while the task is waiting.
type heartbeat struct {
	budget    time.Duration
	busySince atomic.Int64
}

func (h *heartbeat) begin(now time.Time) { h.busySince.Store(now.UnixNano()) }
func (h *heartbeat) end()                { h.busySince.Store(0) }

func (h *heartbeat) overdue(now time.Time) bool {
	if h.budget <= 0 {
		return false
	}
	since := h.busySince.Load()
	if since == 0 {
		return false
	}
	return now.Sub(time.Unix(0, since)) > h.budget
}

type heartbeatKey struct{}

func withHeartbeat(ctx context.Context, hb *heartbeat) context.Context {
	return context.WithValue(ctx, heartbeatKey{}, hb)
}

// Step marks the start of one unit of work for the task owning ctx and
// returns the func that marks its end. Steps must not nest. Outside a
// scheduled task Step is a no-op.
//
//	done := service.Step(ctx)
//	c.tick()
//	done()
func Step(ctx context.Context) (done func()) {
	hb, ok := ctx.Value(heartbeatKey{}).(*heartbeat)
	if !ok {
		return func() {}
	}
	hb.begin(time.Now())
	return hb.end
}
