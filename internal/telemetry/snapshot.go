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

// Package telemetry defines the periodic chamber snapshot and the one
// record shape every sink writes it in.
package telemetry

import (
	"fmt"
	"time"

	"gbebox/internal/actuator"
	"gbebox/internal/box"
	"gbebox/internal/config"
	"gbebox/internal/sensors"

	"github.com/google/uuid"
)

// SettingsEcho repeats the active settings in each message so the
// receiver knows what the chamber was asked to do.
type SettingsEcho struct {
	On           string `json:"on"`
	Off          string `json:"off"`
	FanLightsOn  int    `json:"fan_lights_on"`
	FanLightsOff int    `json:"fan_lights_off"`
	Red          int    `json:"red"`
	Green        int    `json:"green"`
	Blue         int    `json:"blue"`
	White        int    `json:"white"`
	UTCOffset    int    `json:"utc_offset"`
}

func Echo(s *config.Settings) SettingsEcho {
	return SettingsEcho{
		On:           s.LightsOn,
		Off:          s.LightsOff,
		FanLightsOn:  s.FanLightsOn,
		FanLightsOff: s.FanLightsOff,
		Red:          s.Red,
		Green:        s.Green,
		Blue:         s.Blue,
		White:        s.White,
		UTCOffset:    s.UTCOffset,
	}
}

// Snapshot is one telemetry sample. It is not modified once built.
type Snapshot struct {
	ID      string    `json:"id"`
	Board   string    `json:"board"`
	Time    time.Time `json:"time"`
	Trusted bool      `json:"trusted"`

	Outputs  actuator.State   `json:"outputs"`
	Readings sensors.Readings `json:"readings"`
	FanRPM   float64          `json:"fan_rpm"`

	Settings SettingsEcho `json:"settings"`
}

// Sample is what a snapshot is built from.
type Sample struct {
	Outputs  actuator.State
	Readings sensors.Readings
	FanRPM   float64
}

// New stamps a sample with a time-ordered id and the current clock.
func New(board string, clock box.Clock, s *config.Settings, sample Sample) (Snapshot, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	return Snapshot{
		ID:       id.String(),
		Board:    board,
		Time:     clock.Now(),
		Trusted:  clock.Trusted(),
		Outputs:  sample.Outputs,
		Readings: sample.Readings,
		FanRPM:   sample.FanRPM,
		Settings: Echo(s),
	}, nil
}

// Local returns the snapshot time in the chamber's configured zone.
func (s Snapshot) Local() time.Time {
	return s.Time.In(time.FixedZone("", s.Settings.UTCOffset*3600))
}
