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

// Package i2cdev holds register-level drivers for the chamber sensors.
// Each driver talks to a device already addressed on the bus.
package i2cdev

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Conn is an I2C connection to one device address.
type Conn interface {
	io.ReadWriteCloser
}

var sleep = time.Sleep

func writeBytes(c Conn, b ...byte) error {
	n, err := c.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(b))
	}
	return nil
}

func readBytes(c Conn, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readReg16(c Conn, reg byte) (uint16, error) {
	if err := writeBytes(c, reg); err != nil {
		return 0, err
	}
	b, err := readBytes(c, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func writeReg16(c Conn, reg byte, v uint16) error {
	return writeBytes(c, reg, byte(v>>8), byte(v))
}
