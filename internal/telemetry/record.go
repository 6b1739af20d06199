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

package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Unknown stands in for the date and time when the clock is untrusted.
const Unknown = "?"

// Field is one named value of a record.
type Field struct {
	Name  string // JSON key
	Title string // TSV header
	Value any    // string, int or float64
}

// Record is a snapshot flattened into its fixed column order.
type Record []Field

// Columns flattens s. Every sink writes this same sequence.
func (s Snapshot) Columns() Record {
	date, clock := Unknown, Unknown
	if s.Trusted {
		local := s.Local()
		date = local.Format("2006-01-02")
		clock = local.Format("15:04")
	}
	r := s.Readings
	return Record{
		{"date", "Date", date},
		{"time", "Time", clock},
		{"red", "Red", int(s.Outputs.Red)},
		{"green", "Green", int(s.Outputs.Green)},
		{"blue", "Blue", int(s.Outputs.Blue)},
		{"white", "White", int(s.Outputs.White)},
		{"volts", "Volts", round(r.Volts, 2)},
		{"milliamps", "Milliamps", round(r.Milliamps, 0)},
		{"watts", "Watts", round(r.Watts, 2)},
		{"fan", "Fan", int(s.Outputs.Fan)},
		{"fan_rpm", "Fan RPM", round(s.FanRPM, 0)},
		{"soil_temp", "Soil temperature", round(r.SoilTemp, 2)},
		{"air_temp", "Air temperature", round(r.AirTemp, 2)},
		{"soil_moisture", "Soil moisture", round(r.SoilMoisture, 0)},
		{"air_humidity", "Air humidity", round(r.AirHumidity, 1)},
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Names returns the JSON keys in column order.
func (r Record) Names() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Name
	}
	return out
}

// Titles returns the TSV header in column order.
func (r Record) Titles() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Title
	}
	return out
}

// Strings renders every value as text, in column order.
func (r Record) Strings() []string {
	out := make([]string, len(r))
	for i, f := range r {
		switch v := f.Value.(type) {
		case string:
			out[i] = v
		case int:
			out[i] = strconv.Itoa(v)
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return out
}

// MarshalJSON writes the record as an object whose keys keep column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Message is the broker payload for one snapshot.
type Message struct {
	ID       string       `json:"id"`
	Board    string       `json:"board"`
	Time     string       `json:"time,omitempty"`
	Trusted  bool         `json:"trusted"`
	Record   Record       `json:"record"`
	Settings SettingsEcho `json:"settings"`
}

// Payload encodes s for the broker.
func (s Snapshot) Payload() ([]byte, error) {
	m := Message{
		ID:       s.ID,
		Board:    s.Board,
		Trusted:  s.Trusted,
		Record:   s.Columns(),
		Settings: s.Settings,
	}
	if s.Trusted {
		m.Time = s.Time.UTC().Format("2006-01-02T15:04:05Z")
	}
	return json.Marshal(m)
}
