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

package sensors

import "gbebox/internal/hardware"

// Unavailable marks a value whose sensor is disconnected.
const Unavailable = -1

// Readings is the latest value of every sensor field.
type Readings struct {
	Volts     float64 `json:"volts"`
	Milliamps float64 `json:"milliamps"`
	Watts     float64 `json:"watts"`

	SoilMoisture float64 `json:"soil_moisture"`
	SoilTemp     float64 `json:"soil_temp"`

	AirHumidity float64 `json:"air_humidity"`
	AirTemp     float64 `json:"air_temp"`
}

// fields lists, per sensor kind, where each sampled value lands.
var fields = map[hardware.SensorKind][]string{
	hardware.Power: {"volts", "milliamps", "watts"},
	hardware.Soil:  {"soil_moisture", "soil_temp"},
	hardware.Air:   {"air_humidity", "air_temp"},
}

func (r *Readings) field(name string) *float64 {
	switch name {
	case "volts":
		return &r.Volts
	case "milliamps":
		return &r.Milliamps
	case "watts":
		return &r.Watts
	case "soil_moisture":
		return &r.SoilMoisture
	case "soil_temp":
		return &r.SoilTemp
	case "air_humidity":
		return &r.AirHumidity
	case "air_temp":
		return &r.AirTemp
	}
	return nil
}

// UnavailableReadings has every field set to Unavailable.
func UnavailableReadings() Readings {
	return Readings{
		Volts: Unavailable, Milliamps: Unavailable, Watts: Unavailable,
		SoilMoisture: Unavailable, SoilTemp: Unavailable,
		AirHumidity: Unavailable, AirTemp: Unavailable,
	}
}
