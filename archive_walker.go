// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"io"
	"io/fs"
	"time"
)

// archiveWalker is an interface that represents a file walker in an archive
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file in an archive
type archiveEntry interface {
	IsRegular() bool
	IsDir() bool
	Mode() fs.FileMode
	ModTime() time.Time
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
}
