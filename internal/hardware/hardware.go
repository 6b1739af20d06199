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

// Package hardware declares the narrow interfaces the controller uses to
// reach the board: PWM outputs, the status pixel, the fan tachometer and
// the I2C sensors. Backends live in the raspi and sim subpackages.
package hardware

import "errors"

// Channel is one PWM output.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
	White
	Fan
)

var Channels = []Channel{Red, Green, Blue, White, Fan}

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case White:
		return "white"
	case Fan:
		return "fan"
	}
	return "unknown"
}

// SensorKind names a pluggable sensor.
type SensorKind string

const (
	Power SensorKind = "power"
	Soil  SensorKind = "soil"
	Air   SensorKind = "air"
)

var SensorKinds = []SensorKind{Power, Soil, Air}

var ErrNotPresent = errors.New("hardware: device not present")

// Outputs drives the light and fan MOSFETs. Duty is 0-255.
type Outputs interface {
	Write(ch Channel, duty uint8) error
}

// Pixel is the single RGB status light.
type Pixel interface {
	SetRGB(r, g, b uint8) error
}

// Tachometer counts fan tach pulses. Take returns the count since the
// previous call and resets it.
type Tachometer interface {
	Take() uint64
}

// Sensor is an opened sensor. Sample returns its values in a fixed order
// per kind:
//
//	power: volts, milliamps, watts
//	soil:  moisture, temperature °C
//	air:   relative humidity %, temperature °C
type Sensor interface {
	Sample() ([]float64, error)
	Close() error
}

// Board is a complete hardware backend.
type Board interface {
	Name() string
	Connect() error
	Outputs() Outputs
	Pixel() Pixel
	Tach() Tachometer
	// OpenSensor probes for kind and returns a handle when present.
	OpenSensor(kind SensorKind) (Sensor, error)
	Close() error
}
