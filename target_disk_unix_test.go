// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package bakeware

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestUnixTimeval(t *testing.T) {
	tests := []struct {
		input time.Time
		want  unix.Timeval
	}{
		{
			time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			unix.Timeval{Sec: 0, Usec: 0},
		},
		{
			// Note: exactly 1 microsecond is not rounded up.
			time.Date(1970, 1, 1, 0, 0, 0, 1000, time.UTC),
			unix.Timeval{Sec: 0, Usec: 1},
		},
		{
			time.Date(1970, 1, 1, 0, 0, 1, 2000, time.UTC),
			unix.Timeval{Sec: 1, Usec: 2},
		},
		{
			time.Unix(1600000000, 0),
			unix.Timeval{Sec: 1600000000, Usec: 0},
		},
	}

	for _, test := range tests {
		t.Run(test.input.String(), func(t *testing.T) {
			got := unixTimeval(test.input)
			if got != test.want {
				t.Errorf("unixTimeval(%v) = %v; want %v", test.input, got, test.want)
			}
		})
	}
}

// TestChtimesSymlink checks that the timestamps of a symlink target stay untouched
func TestChtimesSymlink(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "file")
	link := filepath.Join(tmp, "link")
	if err := os.WriteFile(file, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(file, link); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}

	stamp := time.Unix(1500000000, 0)
	if err := NewTargetDisk().Chtimes(link, stamp, stamp); err != nil {
		t.Fatalf("Chtimes() failed: %s", err)
	}

	lfi, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if !lfi.ModTime().Equal(stamp) {
		t.Errorf("symlink mtime = %v, want %v", lfi.ModTime(), stamp)
	}
	after, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("target mtime changed from %v to %v", before.ModTime(), after.ModTime())
	}
}

// TestSecurityCheckSymlink checks that symlinks inside the extraction path are rejected
func TestSecurityCheckSymlink(t *testing.T) {
	tmp := t.TempDir()
	dst := filepath.Join(tmp, "dst")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{dst, outside} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(dst, "data")); err != nil {
		t.Fatal(err)
	}

	disk := NewTargetDisk()
	if err := securityCheck(disk, dst, "data/hello.txt", NewConfig()); err == nil {
		t.Errorf("expected symlink in path to be rejected")
	}
	if err := securityCheck(disk, dst, "data/hello.txt", NewConfig(WithInsecureTraverseSymlinks(true))); err != nil {
		t.Errorf("expected symlink to be traversed, got %s", err)
	}
	if err := securityCheck(disk, dst, "other/hello.txt", NewConfig()); err != nil {
		t.Errorf("expected path without symlink to pass, got %s", err)
	}
}
