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

package i2cdev

import (
	"fmt"
	"math"
)

const (
	inaRegConfig      = 0x00
	inaRegBusVoltage  = 0x02
	inaRegPower       = 0x03
	inaRegCurrent     = 0x04
	inaRegCalibration = 0x05

	// 32V bus range, 320mV shunt range, 12-bit continuous conversion
	inaConfig = 0x399F

	// 100µA per current LSB
	inaCurrentLSB = 0.0001
)

// INA219 is a high-side current and bus voltage monitor.
type INA219 struct {
	c   Conn
	cal uint16
}

// NewINA219 configures the chip for a shunt of the given resistance.
func NewINA219(c Conn, shuntOhms float64) (*INA219, error) {
	if shuntOhms <= 0 {
		return nil, fmt.Errorf("ina219: invalid shunt %v", shuntOhms)
	}
	d := &INA219{
		c:   c,
		cal: uint16(math.Round(0.04096 / (inaCurrentLSB * shuntOhms))),
	}
	if err := d.configure(); err != nil {
		return nil, fmt.Errorf("ina219: %w", err)
	}
	return d, nil
}

func (d *INA219) configure() error {
	if err := writeReg16(d.c, inaRegConfig, inaConfig); err != nil {
		return err
	}
	return writeReg16(d.c, inaRegCalibration, d.cal)
}

// Sample returns bus volts, milliamps and watts.
func (d *INA219) Sample() ([]float64, error) {
	// the calibration register is lost on a brownout; rewrite it each time
	if err := writeReg16(d.c, inaRegCalibration, d.cal); err != nil {
		return nil, fmt.Errorf("ina219: %w", err)
	}

	bus, err := readReg16(d.c, inaRegBusVoltage)
	if err != nil {
		return nil, fmt.Errorf("ina219 bus voltage: %w", err)
	}
	cur, err := readReg16(d.c, inaRegCurrent)
	if err != nil {
		return nil, fmt.Errorf("ina219 current: %w", err)
	}
	pow, err := readReg16(d.c, inaRegPower)
	if err != nil {
		return nil, fmt.Errorf("ina219 power: %w", err)
	}

	volts := float64(bus>>3) * 0.004
	milliamps := float64(int16(cur)) * inaCurrentLSB * 1000
	watts := float64(pow) * 20 * inaCurrentLSB
	return []float64{volts, milliamps, watts}, nil
}

func (d *INA219) Close() error { return d.c.Close() }
