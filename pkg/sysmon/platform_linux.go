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

package sysmon

import "golang.org/x/sys/unix"

// statDisk reports the filesystem holding path. A card that the kernel
// remounted read-only after I/O errors shows up as ReadOnly.
func statDisk(path string) (Disk, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Disk{Path: path}, err
	}
	bsize := uint64(st.Bsize)
	d := Disk{
		Path:       path,
		Total:      st.Blocks * bsize,
		Free:       st.Bavail * bsize,
		Inodes:     st.Files,
		InodesFree: st.Ffree,
		ReadOnly:   uint64(st.Flags)&unix.ST_RDONLY != 0,
	}
	// blocks reserved for root are neither free to us nor used
	d.Used = (st.Blocks - st.Bfree) * bsize
	return d, nil
}
