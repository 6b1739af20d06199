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

//go:build linux

package watchdog

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// magic close character: written just before close, it disarms the timer
const magicClose = 'V'

// File is the kernel watchdog device, e.g. /dev/watchdog. Opening it
// arms the timer.
type File struct {
	f *os.File
}

// Open arms the watchdog at path with the given timeout in seconds.
func Open(path string, timeoutSeconds int) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, timeoutSeconds); err != nil {
		// the device is armed with its default timeout; disarm before giving up
		f.Write([]byte{magicClose})
		f.Close()
		return nil, fmt.Errorf("set timeout %ds: %w", timeoutSeconds, err)
	}
	return &File{f: f}, nil
}

func (w *File) Feed() error {
	_, err := w.f.Write([]byte{0})
	return err
}

func (w *File) Close(disarm bool) error {
	if disarm {
		if _, err := w.f.Write([]byte{magicClose}); err != nil {
			w.f.Close()
			return fmt.Errorf("disarm: %w", err)
		}
	}
	return w.f.Close()
}
