// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// TargetMemory is an in-memory filesystem implementation. It is a map of slash separated
// paths to memoryEntry values. Paths must satisfy [fs.ValidPath], so extract into a relative
// destination (or "") when using it. Permissions are recorded but not enforced.
//
// TargetMemory implements [fs.FS] and [fs.ReadFileFS] so extracted content can be read back.
type TargetMemory struct {
	files sync.Map // map[string]*memoryEntry
}

// NewTargetMemory creates a new in-memory filesystem.
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{}
}

// CreateFile creates a new file in the in-memory filesystem. If overwrite is false and the
// file already exists, an error is returned. The content is limited to maxSize bytes
// (-1 for no limit). The number of bytes written is returned.
func (m *TargetMemory) CreateFile(p string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	p = memoryPath(p)
	if !fs.ValidPath(p) {
		return 0, fmt.Errorf("%w: %s", fs.ErrInvalid, p)
	}
	if e, ok := m.load(p); ok {
		if e.info.IsDir() {
			return 0, fmt.Errorf("is a directory: %w: %s", fs.ErrExist, p)
		}
		if !overwrite {
			return 0, fmt.Errorf("%w: %s", fs.ErrExist, p)
		}
	}

	// create byte buffered writer
	var buf bytes.Buffer
	n, err := io.Copy(limitWriter(&buf, maxSize), src)
	if err != nil {
		return n, err
	}

	m.files.Store(p, &memoryEntry{
		info: &memoryFileInfo{name: path.Base(p), size: n, mode: mode.Perm(), modTime: now()},
		data: buf.Bytes(),
	})
	return n, nil
}

// CreateDir creates the directory p and all missing parents. Existing directories are
// left untouched; an existing file in the way is an error.
func (m *TargetMemory) CreateDir(p string, mode fs.FileMode) error {
	p = memoryPath(p)
	if !fs.ValidPath(p) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, p)
	}
	if p == "." {
		return nil
	}

	elems := strings.Split(p, "/")
	for i := range elems {
		sub := strings.Join(elems[:i+1], "/")
		if e, ok := m.load(sub); ok {
			if !e.info.IsDir() {
				return fmt.Errorf("not a directory: %s", sub)
			}
			continue
		}
		m.files.Store(sub, &memoryEntry{
			info: &memoryFileInfo{name: path.Base(sub), mode: mode.Perm() | fs.ModeDir, modTime: now()},
		})
	}
	return nil
}

// Lstat returns the FileInfo for the given path. If the path does not exist, an error
// wrapping [fs.ErrNotExist] is returned.
func (m *TargetMemory) Lstat(p string) (fs.FileInfo, error) {
	p = memoryPath(p)
	if !fs.ValidPath(p) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, p)
	}
	if p == "." {
		return &memoryFileInfo{name: ".", mode: fs.ModeDir | 0755}, nil
	}
	if e, ok := m.load(p); ok {
		return e.info, nil
	}
	return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, p)
}

// Stat is Lstat, the in-memory filesystem holds no symlinks.
func (m *TargetMemory) Stat(p string) (fs.FileInfo, error) {
	return m.Lstat(p)
}

// Chmod changes the recorded permission bits, including setuid, setgid and sticky.
func (m *TargetMemory) Chmod(p string, mode fs.FileMode) error {
	return m.update(p, func(fi *memoryFileInfo) {
		keep := fi.mode &^ (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
		fi.mode = keep | mode&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky)
	})
}

// Chtimes changes the recorded modification time. The access time is not kept.
func (m *TargetMemory) Chtimes(p string, _, mtime time.Time) error {
	return m.update(p, func(fi *memoryFileInfo) {
		fi.modTime = mtime
	})
}

// Open opens the named file for reading.
func (m *TargetMemory) Open(p string) (fs.File, error) {
	if !fs.ValidPath(p) {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrInvalid}
	}
	e, ok := m.load(p)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if e.info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fmt.Errorf("cannot open directory")}
	}
	return &memoryFile{info: e.info, r: bytes.NewReader(e.data)}, nil
}

// ReadFile returns the content of the named file.
func (m *TargetMemory) ReadFile(p string) ([]byte, error) {
	if !fs.ValidPath(p) {
		return nil, &fs.PathError{Op: "readfile", Path: p, Err: fs.ErrInvalid}
	}
	e, ok := m.load(p)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: p, Err: fs.ErrNotExist}
	}
	if e.info.IsDir() {
		return nil, &fs.PathError{Op: "readfile", Path: p, Err: fmt.Errorf("cannot read directory")}
	}
	return append([]byte(nil), e.data...), nil
}

// Paths returns all stored paths in lexical order.
func (m *TargetMemory) Paths() []string {
	var paths []string
	m.files.Range(func(k, _ any) bool {
		paths = append(paths, k.(string))
		return true
	})
	sort.Strings(paths)
	return paths
}

func (m *TargetMemory) load(p string) (*memoryEntry, bool) {
	e, ok := m.files.Load(p)
	if !ok {
		return nil, false
	}
	return e.(*memoryEntry), true
}

// update replaces the file info of p with a modified copy.
func (m *TargetMemory) update(p string, fn func(*memoryFileInfo)) error {
	p = memoryPath(p)
	if !fs.ValidPath(p) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, p)
	}
	e, ok := m.load(p)
	if !ok {
		return fmt.Errorf("%w: %s", fs.ErrNotExist, p)
	}
	fi := *e.info
	fn(&fi)
	m.files.Store(p, &memoryEntry{info: &fi, data: e.data})
	return nil
}

// memoryPath converts a platform path into the slash separated key form.
func memoryPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

// memoryEntry is an entry in the in-memory filesystem.
type memoryEntry struct {
	info *memoryFileInfo
	data []byte
}

// memoryFile is an open file of the in-memory filesystem.
type memoryFile struct {
	info *memoryFileInfo
	r    *bytes.Reader
}

func (f *memoryFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *memoryFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *memoryFile) Close() error               { return nil }

// memoryFileInfo is a FileInfo implementation for the in-memory filesystem
type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

// Name returns the name of the file
func (fi *memoryFileInfo) Name() string {
	return fi.name
}

// Size returns the size of the file
func (fi *memoryFileInfo) Size() int64 {
	return fi.size
}

// Mode returns the mode of the file
func (fi *memoryFileInfo) Mode() fs.FileMode {
	return fi.mode
}

// ModTime returns the modification time of the file
func (fi *memoryFileInfo) ModTime() time.Time {
	return fi.modTime
}

// IsDir returns true if the file is a directory
func (fi *memoryFileInfo) IsDir() bool {
	return fi.mode.IsDir()
}

// Sys returns the underlying data source (nil for in-memory filesystem)
func (fi *memoryFileInfo) Sys() any {
	return nil
}
