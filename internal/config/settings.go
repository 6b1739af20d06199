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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Duty ceilings per channel, on the 0-255 PWM scale.
const (
	MaxRed   = 200
	MaxGreen = 89
	MaxBlue  = 94
	MaxWhite = 146
	MaxFan   = 255

	MinUTCOffset = -11
	MaxUTCOffset = 13
)

var ErrInvalid = errors.New("invalid settings")

var hhmm = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Settings is the validated chamber configuration. It is never mutated
// after Load returns.
type Settings struct {
	LightsOn  string // HH:MM
	LightsOff string // HH:MM

	Red, Green, Blue, White int

	FanLightsOn  int
	FanLightsOff int

	UTCOffset int // hours
}

// fileSettings mirrors gbe_settings.json. Pointers distinguish a missing
// key from a zero value.
type fileSettings struct {
	Lights struct {
		Timer struct {
			On  *string `json:"on"`
			Off *string `json:"off"`
		} `json:"timer"`
		Duty struct {
			Red   *int `json:"red"`
			Green *int `json:"green"`
			Blue  *int `json:"blue"`
			White *int `json:"white"`
		} `json:"duty"`
	} `json:"lights"`
	Fan struct {
		Duty struct {
			WhenLightsOn  *int `json:"when lights on"`
			WhenLightsOff *int `json:"when lights off"`
		} `json:"duty"`
	} `json:"fan"`
	TimeZone struct {
		GMTOffset *int `json:"GMT offset"`
	} `json:"time zone"`
}

// LoadSettings reads and validates the settings file at path.
func LoadSettings(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()
	return DecodeSettings(f)
}

// DecodeSettings decodes and validates settings JSON. Every violation is
// reported in the returned error, which matches ErrInvalid.
func DecodeSettings(r io.Reader) (*Settings, error) {
	var fs fileSettings
	if err := json.NewDecoder(r).Decode(&fs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}

	var errs []error
	timeOfDay := func(name string, v *string) string {
		switch {
		case v == nil:
			errs = append(errs, fmt.Errorf("%s: missing", name))
		case !hhmm.MatchString(*v):
			errs = append(errs, fmt.Errorf("%s: %q is not HH:MM", name, *v))
		default:
			return *v
		}
		return ""
	}
	bounded := func(name string, v *int, lo, hi int) int {
		switch {
		case v == nil:
			errs = append(errs, fmt.Errorf("%s: missing", name))
		case *v < lo || *v > hi:
			errs = append(errs, fmt.Errorf("%s: %d outside [%d, %d]", name, *v, lo, hi))
		default:
			return *v
		}
		return 0
	}

	s := &Settings{
		LightsOn:     timeOfDay("lights.timer.on", fs.Lights.Timer.On),
		LightsOff:    timeOfDay("lights.timer.off", fs.Lights.Timer.Off),
		Red:          bounded("lights.duty.red", fs.Lights.Duty.Red, 0, MaxRed),
		Green:        bounded("lights.duty.green", fs.Lights.Duty.Green, 0, MaxGreen),
		Blue:         bounded("lights.duty.blue", fs.Lights.Duty.Blue, 0, MaxBlue),
		White:        bounded("lights.duty.white", fs.Lights.Duty.White, 0, MaxWhite),
		FanLightsOn:  bounded("fan.duty.when lights on", fs.Fan.Duty.WhenLightsOn, 0, MaxFan),
		FanLightsOff: bounded("fan.duty.when lights off", fs.Fan.Duty.WhenLightsOff, 0, MaxFan),
		UTCOffset:    bounded("time zone.GMT offset", fs.TimeZone.GMTOffset, MinUTCOffset, MaxUTCOffset),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return s, nil
}

// OnSeconds returns the configured lights-on time as seconds since midnight.
func (s *Settings) OnSeconds() int { return secondsOfDay(s.LightsOn) }

// OffSeconds returns the configured lights-off time as seconds since midnight.
func (s *Settings) OffSeconds() int { return secondsOfDay(s.LightsOff) }

// secondsOfDay converts a validated HH:MM string.
func secondsOfDay(hm string) int {
	h, m, _ := strings.Cut(hm, ":")
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	return (hours*60 + minutes) * 60
}
