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

package clock

import (
	"context"
	"time"

	"gbebox/internal/metrics"
	"gbebox/pkg/logger"
	"gbebox/pkg/service"
)

// Syncer periodically corrects the clock from the network and copies the
// result to the RTC.
type Syncer struct {
	log      *logger.Logger
	clock    *Clock
	ntp      TimeSource
	rtc      RTC
	interval time.Duration
	metrics  *metrics.Metrics
}

func NewSyncer(c *Clock, ntp TimeSource, rtc RTC, interval time.Duration, m *metrics.Metrics) *Syncer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Syncer{
		log:      logger.New("ClockSync"),
		clock:    c,
		ntp:      ntp,
		rtc:      rtc,
		interval: interval,
		metrics:  m,
	}
}

func (s *Syncer) Run(ctx context.Context) {
	s.metrics.SetClockTrusted(s.clock.Trusted())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done := service.Step(ctx)
			if err := s.clock.Sync(ctx, s.ntp, s.rtc); err != nil {
				s.log.Warn("resync failed, keeping %s time: %v", s.clock.Source(), err)
			} else {
				s.log.Info("resynced: %s", s.clock.Now().Format(time.RFC3339))
			}
			s.metrics.SetClockTrusted(s.clock.Trusted())
			done()
		}
	}
}
