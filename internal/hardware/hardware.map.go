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

package hardware

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Map is the pin and bus layout of a board, loaded from hardware.yml.
type Map struct {
	PWM     PWMPins              `yaml:"pwm"`
	Pixel   PixelPins            `yaml:"pixel"`
	Tach    TachPin              `yaml:"tach"`
	Sensors map[SensorKind]I2CDef `yaml:"sensors"`

	ShuntOhms float64 `yaml:"shunt_ohms"`
}

type PWMPins struct {
	Red   string `yaml:"red"`
	Green string `yaml:"green"`
	Blue  string `yaml:"blue"`
	White string `yaml:"white"`
	Fan   string `yaml:"fan"`
}

type PixelPins struct {
	Red   string `yaml:"red"`
	Green string `yaml:"green"`
	Blue  string `yaml:"blue"`
}

type TachPin struct {
	Pin        string `yaml:"pin"`
	PollMicros int    `yaml:"poll_micros"`
}

type I2CDef struct {
	Bus     int `yaml:"bus"`
	Address int `yaml:"address"`
}

// DefaultMap is the reference control box wiring, in Raspberry Pi header
// pin numbers.
func DefaultMap() *Map {
	return &Map{
		PWM:   PWMPins{Red: "11", Green: "13", Blue: "15", White: "16", Fan: "18"},
		Pixel: PixelPins{Red: "29", Green: "31", Blue: "33"},
		Tach:  TachPin{Pin: "22", PollMicros: 500},
		Sensors: map[SensorKind]I2CDef{
			Power: {Bus: 1, Address: 0x40},
			Soil:  {Bus: 1, Address: 0x36},
			Air:   {Bus: 1, Address: 0x38},
		},
		ShuntOhms: 0.1,
	}
}

// LoadMap reads the hardware map at path over the defaults. A missing file
// yields DefaultMap.
func LoadMap(path string) (*Map, error) {
	m := DefaultMap()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hardware map: %w", err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse hardware map: %w", err)
	}
	return m, m.validate()
}

func (m *Map) validate() error {
	var errs []error
	for _, kind := range SensorKinds {
		def, ok := m.Sensors[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("sensors.%s: missing", kind))
			continue
		}
		if def.Address <= 0 || def.Address > 0x7f {
			errs = append(errs, fmt.Errorf("sensors.%s.address: 0x%x is not a 7-bit address", kind, def.Address))
		}
	}
	if m.ShuntOhms <= 0 {
		errs = append(errs, fmt.Errorf("shunt_ohms: must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("hardware map: %w", errors.Join(errs...))
	}
	return nil
}

// Pin returns the header pin of a PWM channel.
func (p PWMPins) Pin(ch Channel) string {
	switch ch {
	case Red:
		return p.Red
	case Green:
		return p.Green
	case Blue:
		return p.Blue
	case White:
		return p.White
	case Fan:
		return p.Fan
	}
	return ""
}
