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
	"encoding/binary"
	"fmt"
	"time"
)

const (
	seesawStatusBase  = 0x00
	seesawStatusHWID  = 0x01
	seesawStatusTemp  = 0x04
	seesawTouchBase   = 0x0F
	seesawTouchOffset = 0x10

	seesawHWID = 0x55
)

// Seesaw is a capacitive soil moisture probe built on the seesaw firmware.
type Seesaw struct {
	c Conn
}

// NewSeesaw checks the hardware id and returns the probe.
func NewSeesaw(c Conn) (*Seesaw, error) {
	d := &Seesaw{c: c}
	b, err := d.read(seesawStatusBase, seesawStatusHWID, 1, time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("seesaw: %w", err)
	}
	if b[0] != seesawHWID {
		return nil, fmt.Errorf("seesaw: unexpected hardware id 0x%02x", b[0])
	}
	return d, nil
}

func (d *Seesaw) read(base, fn byte, n int, wait time.Duration) ([]byte, error) {
	if err := writeBytes(d.c, base, fn); err != nil {
		return nil, err
	}
	sleep(wait)
	return readBytes(d.c, n)
}

// Sample returns moisture (raw capacitance) and temperature in °C.
func (d *Seesaw) Sample() ([]float64, error) {
	m, err := d.read(seesawTouchBase, seesawTouchOffset, 2, 5*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("seesaw moisture: %w", err)
	}
	moisture := binary.BigEndian.Uint16(m)
	if moisture == 0xFFFF {
		return nil, fmt.Errorf("seesaw moisture: conversion not ready")
	}

	t, err := d.read(seesawStatusBase, seesawStatusTemp, 4, time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("seesaw temperature: %w", err)
	}
	// 16.16 fixed point
	temp := float64(int32(binary.BigEndian.Uint32(t))) / 65536

	return []float64{float64(moisture), temp}, nil
}

func (d *Seesaw) Close() error { return d.c.Close() }
