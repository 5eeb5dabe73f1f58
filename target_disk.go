// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// TargetDisk is the struct type that holds all information for interacting with the filesystem
type TargetDisk struct{}

// NewTargetDisk creates a new TargetDisk
func NewTargetDisk() *TargetDisk {
	return &TargetDisk{}
}

// CreateDir creates a directory at the specified path with the specified mode. If the directory already
// exists, nothing is done. Parent directories are created as well.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {

	// create dirs
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory (%w)", err)
	}

	return nil
}

// CreateFile creates a file at the specified path with src as content.
// If the file already exists and overwrite is false, an error is returned, otherwise
// the file is truncated. The content is streamed from src; at most maxSize bytes
// are written, unless maxSize < 0.
func (d *TargetDisk) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	// Check for path validity and if file existence+overwrite
	if _, err := os.Lstat(path); !os.IsNotExist(err) {

		// something wrong with path
		if err != nil {
			return 0, fmt.Errorf("invalid path: %w", err)
		}

		// check for overwrite
		if !overwrite {
			return 0, fmt.Errorf("file already exists: %w", fs.ErrExist)
		}
	}

	// create dst file
	dstFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	// write data to file
	n, err := io.Copy(limitWriter(dstFile, maxSize), src)
	if err != nil {
		dstFile.Close()
		return n, fmt.Errorf("failed to write file: %w", err)
	}

	if err := dstFile.Close(); err != nil {
		return n, fmt.Errorf("failed to close file: %w", err)
	}
	return n, nil
}

// Lstat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

// Stat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Chmod changes the mode of the named file to mode. The permission bits as well as
// setuid, setgid and sticky are applied, the umask is not.
func (d *TargetDisk) Chmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky))
}

// Chtimes changes the access and modification times of the named file.
// On unix platforms symlinks are not followed.
func (d *TargetDisk) Chtimes(name string, atime, mtime time.Time) error {
	if canMaintainSymlinkTimestamps {
		return lchtimes(name, atime, mtime)
	}
	return os.Chtimes(name, atime, mtime)
}
