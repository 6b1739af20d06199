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
	"time"
)

const (
	ahtCmdInit    = 0xE1
	ahtCmdTrigger = 0xAC
	ahtStatusBusy = 0x80
	ahtStatusCal  = 0x08
)

// AHT10 is an air temperature and humidity sensor.
type AHT10 struct {
	c Conn
}

// NewAHT10 loads the calibration and verifies the device answers.
func NewAHT10(c Conn) (*AHT10, error) {
	if err := writeBytes(c, ahtCmdInit, 0x08, 0x00); err != nil {
		return nil, fmt.Errorf("aht10 init: %w", err)
	}
	sleep(10 * time.Millisecond)
	st, err := readBytes(c, 1)
	if err != nil {
		return nil, fmt.Errorf("aht10 status: %w", err)
	}
	if st[0]&ahtStatusCal == 0 {
		return nil, fmt.Errorf("aht10: not calibrated (status 0x%02x)", st[0])
	}
	return &AHT10{c: c}, nil
}

// Sample returns relative humidity in % and temperature in °C.
func (d *AHT10) Sample() ([]float64, error) {
	if err := writeBytes(d.c, ahtCmdTrigger, 0x33, 0x00); err != nil {
		return nil, fmt.Errorf("aht10 trigger: %w", err)
	}
	var b []byte
	for attempt := 0; attempt < 5; attempt++ {
		sleep(80 * time.Millisecond)
		var err error
		if b, err = readBytes(d.c, 6); err != nil {
			return nil, fmt.Errorf("aht10 read: %w", err)
		}
		if b[0]&ahtStatusBusy == 0 {
			break
		}
	}
	if b[0]&ahtStatusBusy != 0 {
		return nil, fmt.Errorf("aht10: measurement timed out")
	}

	rawH := uint32(b[1])<<12 | uint32(b[2])<<4 | uint32(b[3])>>4
	rawT := uint32(b[3]&0x0F)<<16 | uint32(b[4])<<8 | uint32(b[5])
	humidity := float64(rawH) / (1 << 20) * 100
	temp := float64(rawT)/(1<<20)*200 - 50
	return []float64{humidity, temp}, nil
}

func (d *AHT10) Close() error { return d.c.Close() }
