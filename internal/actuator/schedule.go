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
	"time"

	"gbebox/internal/config"
	"gbebox/internal/hardware"
)

const (
	secondsPerDay = 24 * 60 * 60

	// the light window opens and closes this long before the configured time
	lead = 60
)

// State is the full output picture for one instant.
type State struct {
	Red      uint8 `json:"red"`
	Green    uint8 `json:"green"`
	Blue     uint8 `json:"blue"`
	White    uint8 `json:"white"`
	Fan      uint8 `json:"fan"`
	LightsOn bool  `json:"lights_on"`
}

// Duty returns the duty of ch.
func (s State) Duty(ch hardware.Channel) uint8 {
	switch ch {
	case hardware.Red:
		return s.Red
	case hardware.Green:
		return s.Green
	case hardware.Blue:
		return s.Blue
	case hardware.White:
		return s.White
	case hardware.Fan:
		return s.Fan
	}
	return 0
}

// Derive computes the outputs for now. It depends on nothing but its
// arguments, so the same instant always yields the same State.
func Derive(s *config.Settings, now time.Time) State {
	local := now.In(time.FixedZone("", s.UTCOffset*3600))
	sod := local.Hour()*3600 + local.Minute()*60 + local.Second()

	if !InWindow(sod, s.OnSeconds(), s.OffSeconds()) {
		return State{Fan: clamp(s.FanLightsOff, config.MaxFan)}
	}
	return State{
		Red:      clamp(s.Red, config.MaxRed),
		Green:    clamp(s.Green, config.MaxGreen),
		Blue:     clamp(s.Blue, config.MaxBlue),
		White:    clamp(s.White, config.MaxWhite),
		Fan:      clamp(s.FanLightsOn, config.MaxFan),
		LightsOn: true,
	}
}

// InWindow reports whether second-of-day sod falls in the light window
// [on-lead, off-lead). A window with on after off runs through midnight;
// on equal to off is never open.
func InWindow(sod, on, off int) bool {
	if on == off {
		return false
	}
	start := mod(on-lead, secondsPerDay)
	end := mod(off-lead, secondsPerDay)
	if start < end {
		return sod >= start && sod < end
	}
	return sod >= start || sod < end
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

func clamp(v, ceiling int) uint8 {
	if v < 0 {
		return 0
	}
	if v > ceiling {
		return uint8(ceiling)
	}
	return uint8(v)
}
