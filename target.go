// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Target specifies all function that are needed to be implemented to extract contents from an archive
type Target interface {
	// CreateFile creates a file at the specified path with src as content. The mode parameter is the file mode that
	// should be set on the file. If the file already exists and overwrite is false, an error should be returned. If the
	// file exists and overwrite is true, it is truncated. The size of the file should not exceed maxSize. The number of
	// bytes written is returned, also in case of an error. If maxSize < 0, the file size is not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error)

	// CreateDir creates the directory at the specified path, including its parents, with the specified mode.
	// If the directory already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the extraction path
	// and for path traversal.
	Lstat(path string) (fs.FileInfo, error)

	// Stat see docs for os.Stat. Main purpose is to check if a directory entry already exists.
	Stat(path string) (fs.FileInfo, error)

	// Chmod see docs for os.Chmod. Main purpose is to apply the mode recorded in the archive.
	Chmod(name string, mode fs.FileMode) error

	// Chtimes see docs for os.Chtimes. Main purpose is to restore the modification time.
	Chtimes(name string, atime, mtime time.Time) error
}

// entryPath converts the slash separated name of an archive entry into a
// platform path below dst.
func entryPath(dst string, name string) string {
	parts := strings.Split(name, "/")
	return filepath.Join(dst, filepath.Join(parts...))
}

// createFile is a wrapper around the CreateFile function
//
// If the name is empty, the function returns an error.
//
// If the directory for the file does not exist, it will be created with the config.CustomCreateDirMode().
//
// Unless config.InsecureAllowTraversal() is set, the function returns an error if the path
// escapes dst or contains a symlink that must not be traversed.
//
// If the file is created successfully, the function returns the number of bytes written and nil.
func createFile(t Target, dst string, name string, src io.Reader, mode fs.FileMode, maxSize int64, cfg *Config) (int64, error) {
	// check if a name is provided
	if len(name) == 0 {
		return 0, fmt.Errorf("cannot create file without name")
	}

	// adjust path to by os specific
	parts := strings.Split(name, "/")
	name = filepath.Join(parts...)

	// ensures that the parent directory exists and is safe to write to
	if err := createDir(t, dst, filepath.Dir(name), cfg.CustomCreateDirMode(), cfg); err != nil {
		return 0, fmt.Errorf("cannot create directory: %w", err)
	}

	// ensure that if the file exist that it is not a symlink
	if err := securityCheck(t, dst, name, cfg); err != nil {
		return 0, fmt.Errorf("security check path failed: %w", err)
	}
	return t.CreateFile(filepath.Join(dst, name), src, mode, cfg.Overwrite(), maxSize)
}

// createDir is a wrapper around the CreateDir function
//
// If the path contains path traversal or a symlink, the function returns an error.
//
// If the path contains a symlink and config.TraverseSymlinks() returns true, a warning is logged and the
// function continues.
//
// If the directory is created successfully, the function returns nil.
func createDir(t Target, dst string, name string, mode fs.FileMode, cfg *Config) error {
	// no action needed
	if name == "." || name == "" {
		return nil
	}

	// perform security check to ensure that the path is safe to write to
	if err := securityCheck(t, dst, name, cfg); err != nil {
		return fmt.Errorf("security check path failed: %w", err)
	}

	return t.CreateDir(entryPath(dst, name), mode)
}

// createDestination creates dst with all parents if it does not exist and
// config.CreateDestination() is set.
func createDestination(t Target, dst string, cfg *Config) error {
	if len(dst) == 0 || dst == "." {
		return nil
	}
	if _, err := t.Lstat(dst); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("invalid destination: %w", err)
	}
	if !cfg.CreateDestination() {
		return fmt.Errorf("destination does not exist")
	}
	if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
		return fmt.Errorf("failed to create destination directory %w", err)
	}
	cfg.Logger().Info("created destination directory", "path", dst)
	return nil
}

// securityCheck checks if the path contains path traversal and if the path
// contains a symlink. The check is skipped if config.InsecureAllowTraversal()
// returns true.
//
// If the path contains a symlink and config.TraverseSymlinks() returns true,
// a warning is logged and the function continues.
//
// If the path contains a symlink and config.TraverseSymlinks() returns false,
// an error is returned.
func securityCheck(t Target, dst string, path string, config *Config) error {
	if config.InsecureAllowTraversal() {
		return nil
	}

	// check if dstBase is empty, then targetDirectory should not be an absolute path
	if len(dst) == 0 {
		if filepath.IsAbs(path) {
			return fmt.Errorf("absolute path detected")
		}
	}

	// clean the target
	parts := strings.Split(path, "/")
	path = filepath.Join(parts...)

	// get relative path from base to new directory target
	rel, err := filepath.Rel(dst, filepath.Join(dst, path))
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}
	// check if the relative path is local
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("path traversal detected")
	}

	// check each dir in path
	targetPathElements := strings.Split(path, string(os.PathSeparator))
	for i := 0; i < len(targetPathElements); i++ {

		// assemble path
		subDirs := filepath.Join(targetPathElements[0 : i+1]...)
		checkDir := filepath.Join(dst, subDirs)

		// check if its a proper path
		if len(checkDir) == 0 || checkDir == "." {
			continue
		}

		// check for symlink
		isSymlink, err := isSymlink(t, checkDir)
		if err != nil {
			return fmt.Errorf("failed to check symlink: %w", err)
		}
		if isSymlink {
			if config.TraverseSymlinks() {
				config.Logger().Warn("traverse symlink", "sub-dir", subDirs)
			} else {
				return fmt.Errorf("symlink in path")
			}
		}
	}

	return nil
}

// isSymlink checks if path is a symlink
//
// The function returns true if the path is a symlink, otherwise false. A path
// that does not exist is not a symlink.
func isSymlink(t Target, path string) (bool, error) {
	stat, err := t.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return stat.Mode()&fs.ModeSymlink == fs.ModeSymlink, nil
}
