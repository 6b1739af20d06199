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
	"fmt"
	"sync"
	"time"

	"gbebox/pkg/logger"
)

// minPlausibleYear is the first year a free-running system clock is
// believed. Boards without a battery boot into 1970 or 2000.
const minPlausibleYear = 2022

type Source string

const (
	SourceNone   Source = "none"
	SourceNTP    Source = "ntp"
	SourceRTC    Source = "rtc"
	SourceSystem Source = "system"
)

// TimeSource is a network time reference.
type TimeSource interface {
	Time(ctx context.Context) (time.Time, error)
}

// RTC is a battery backed real time clock.
type RTC interface {
	Read() (time.Time, error)
	Write(t time.Time) error
}

// Clock is the single logical wall clock of the box. It is kept as an
// offset over the system clock, so setting it never touches the OS.
type Clock struct {
	log  *logger.Logger
	zone *time.Location
	sys  func() time.Time

	mu       sync.RWMutex
	offset   time.Duration
	source   Source
	syncedAt time.Time
}

// New returns an untrusted clock reporting time at the given UTC offset.
func New(utcOffsetHours int) *Clock {
	return &Clock{
		log:    logger.New("Clock"),
		zone:   time.FixedZone(fmt.Sprintf("UTC%+d", utcOffsetHours), utcOffsetHours*3600),
		sys:    time.Now,
		source: SourceNone,
	}
}

// Now returns the current time in the configured zone.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	off := c.offset
	c.mu.RUnlock()
	return c.sys().Add(off).In(c.zone)
}

// Trusted reports whether any trusted source has set the clock.
func (c *Clock) Trusted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source != SourceNone
}

func (c *Clock) Source() Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

func (c *Clock) Zone() *time.Location { return c.zone }

// SyncedAt returns the system time of the last successful set.
func (c *Clock) SyncedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncedAt
}

// Set makes t the current time and records its source.
func (c *Clock) Set(t time.Time, src Source) {
	sys := c.sys()
	c.mu.Lock()
	c.offset = t.Sub(sys)
	c.source = src
	c.syncedAt = sys
	c.mu.Unlock()
	c.log.Debug("set from %s, offset %v", src, t.Sub(sys))
}

// Init picks the best available starting time: network, then RTC, then a
// plausible system clock. With none of those the clock stays untrusted.
// Either source may be nil.
func (c *Clock) Init(ctx context.Context, ntp TimeSource, rtc RTC) Source {
	if ntp != nil {
		t, err := ntp.Time(ctx)
		if err == nil {
			c.Set(t, SourceNTP)
			c.writeRTC(rtc, t)
			c.log.Info("time set from network: %s", c.Now().Format(time.RFC3339))
			return SourceNTP
		}
		c.log.Warn("network time unavailable: %v", err)
	}

	if rtc != nil {
		t, err := rtc.Read()
		switch {
		case err != nil:
			c.log.Warn("rtc unavailable: %v", err)
		case !plausible(t):
			c.log.Warn("rtc time %s is implausible", t.Format(time.RFC3339))
		default:
			c.Set(t, SourceRTC)
			c.log.Info("time set from rtc: %s", c.Now().Format(time.RFC3339))
			return SourceRTC
		}
	}

	if now := c.sys(); plausible(now) {
		c.Set(now, SourceSystem)
		c.log.Info("using system clock: %s", c.Now().Format(time.RFC3339))
		return SourceSystem
	}

	c.log.Warn("no trusted time source, clock is untrusted")
	return SourceNone
}

// Sync queries ntp once and, on success, corrects the clock and the RTC.
func (c *Clock) Sync(ctx context.Context, ntp TimeSource, rtc RTC) error {
	t, err := ntp.Time(ctx)
	if err != nil {
		return fmt.Errorf("network time: %w", err)
	}
	c.Set(t, SourceNTP)
	c.writeRTC(rtc, t)
	return nil
}

func (c *Clock) writeRTC(rtc RTC, t time.Time) {
	if rtc == nil {
		return
	}
	if err := rtc.Write(t); err != nil {
		c.log.Warn("rtc write: %v", err)
	}
}

func plausible(t time.Time) bool {
	return t.UTC().Year() >= minPlausibleYear
}
