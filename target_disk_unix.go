// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package bakeware

import (
	"time"

	"golang.org/x/sys/unix"
)

// lchtimes modifies the access and modified timestamps on a target path
// without following a symlink at its end.
func lchtimes(path string, atime, mtime time.Time) error {
	return unix.Lutimes(path, []unix.Timeval{
		unixTimeval(atime),
		unixTimeval(mtime),
	})
}

// unixTimeval converts a time.Time to a unix.Timeval. Note that it always rounds
// up to the nearest microsecond, so even one nanosecond past the previous nanosecond
// will be rounded up to the next microsecond.
// See the implementation of unix.NsecToTimeval for details on how this happens.
func unixTimeval(t time.Time) unix.Timeval {
	return unix.NsecToTimeval(t.UnixNano())
}

// canMaintainSymlinkTimestamps is true if lchtimes is available.
const canMaintainSymlinkTimestamps = true
