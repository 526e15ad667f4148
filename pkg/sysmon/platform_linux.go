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

// statDisk fills the size and inode counts of the filesystem holding path.
func statDisk(path string) (Disk, error) {
	d := Disk{Path: path}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return d, err
	}
	bsize := uint64(st.Bsize)
	d.Total = st.Blocks * bsize
	d.Free = st.Bavail * bsize
	d.Used = d.Total - st.Bfree*bsize
	d.Inodes = st.Files
	d.InodesFree = st.Ffree
	return d, nil
}
