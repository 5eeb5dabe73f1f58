// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// cpio "new ASCII" (newc) format as written by `cpio -H newc`.
const (
	newcMagic      = "070701"
	newcHeaderSize = 110
	newcFieldSize  = 8
	newcMaxNameLen = 512
	newcAlignment  = 4

	// newcTrailer is the name of the entry that ends the archive.
	newcTrailer = "TRAILER!!!"
)

// mode type bits of a cpio entry
const (
	cpioModeType    = 0o170000
	cpioModeRegular = 0o100000
	cpioModeSetuid  = 0o4000
	cpioModeSetgid  = 0o2000
	cpioModeSticky  = 0o1000
)

// errStreamConsumed is returned when a stream handle is used after it was
// handed to an entry reader.
var errStreamConsumed = errors.New("cpio stream handle already consumed")

// stream is the read cursor over the decompressed payload. A handle is owned by
// exactly one party: readNewc consumes it, and the returned entry reader hands
// a fresh handle back from Finish.
type stream struct {
	r        io.Reader
	off      int64
	consumed bool
}

// newStream returns the first handle for r.
func newStream(r io.Reader) *stream {
	return &stream{r: r}
}

// readFull fills p and advances the cursor.
func (s *stream) readFull(p []byte) error {
	n, err := io.ReadFull(s.r, p)
	s.off += int64(n)
	return err
}

// skip discards n bytes.
func (s *stream) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	m, err := io.CopyN(io.Discard, s.r, n)
	s.off += m
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// align discards the padding up to the next cpio boundary.
func (s *stream) align() error {
	return s.skip((newcAlignment - s.off%newcAlignment) % newcAlignment)
}

// newcHeader is the decoded fixed header and name of an entry.
type newcHeader struct {
	Inode     uint32
	Mode      uint32
	UID       uint32
	GID       uint32
	NLink     uint32
	ModTime   uint32
	FileSize  uint32
	DevMajor  uint32
	DevMinor  uint32
	RDevMajor uint32
	RDevMinor uint32
	NameSize  uint32
	Check     uint32
	Name      string
}

// parseNewcHeader decodes the 110 byte header in buf. The name is not part of buf.
func parseNewcHeader(buf []byte) (*newcHeader, error) {
	if string(buf[:len(newcMagic)]) != newcMagic {
		return nil, badMagic([]byte(newcMagic), buf[:len(newcMagic)], "cpio entry header")
	}

	var h newcHeader
	fields := []*uint32{
		&h.Inode, &h.Mode, &h.UID, &h.GID, &h.NLink, &h.ModTime, &h.FileSize,
		&h.DevMajor, &h.DevMinor, &h.RDevMajor, &h.RDevMinor, &h.NameSize, &h.Check,
	}
	pos := len(newcMagic)
	for i, f := range fields {
		raw := buf[pos : pos+newcFieldSize]
		v, err := strconv.ParseUint(string(raw), 16, 32)
		if err != nil {
			return nil, malformedEntry(err, "invalid header field %d %q", i, raw)
		}
		*f = uint32(v)
		pos += newcFieldSize
	}
	return &h, nil
}

// newcReader gives access to one entry. Read returns the entry content; Finish
// skips whatever content is left and returns the stream for the next entry.
type newcReader struct {
	s      *stream
	hdr    *newcHeader
	remain int64
}

// readNewc decodes the next entry header and name from s and takes ownership of
// s. The handle must not be used again; continue with the handle returned by
// [newcReader.Finish].
func readNewc(s *stream) (*newcReader, error) {
	if s == nil || s.consumed {
		return nil, errStreamConsumed
	}
	s.consumed = true

	buf := make([]byte, newcHeaderSize)
	if err := s.readFull(buf); err != nil {
		return nil, malformedEntry(err, "cannot read header at offset %d", s.off)
	}
	hdr, err := parseNewcHeader(buf)
	if err != nil {
		return nil, err
	}

	if hdr.NameSize == 0 || hdr.NameSize > newcMaxNameLen {
		return nil, malformedEntry(nil, "name size %d out of range 1..%d", hdr.NameSize, newcMaxNameLen)
	}
	name := make([]byte, hdr.NameSize)
	if err := s.readFull(name); err != nil {
		return nil, malformedEntry(err, "cannot read name at offset %d", s.off)
	}
	if name[len(name)-1] != 0 {
		return nil, malformedEntry(nil, "name is not NUL terminated")
	}
	hdr.Name = string(name[:len(name)-1])

	if err := s.align(); err != nil {
		return nil, malformedEntry(err, "cannot read name padding")
	}

	return &newcReader{s: s, hdr: hdr, remain: int64(hdr.FileSize)}, nil
}

// Header returns the decoded header.
func (r *newcReader) Header() *newcHeader {
	return r.hdr
}

// IsTrailer returns true if this is the entry that ends the archive.
func (r *newcReader) IsTrailer() bool {
	return r.hdr.Name == newcTrailer
}

// Read reads the entry content and returns io.EOF after FileSize bytes.
func (r *newcReader) Read(p []byte) (int, error) {
	if r.s == nil {
		return 0, errStreamConsumed
	}
	if r.remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	n, err := r.s.r.Read(p)
	r.s.off += int64(n)
	r.remain -= int64(n)
	if err == io.EOF && r.remain > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Finish discards the unread content and its padding and returns the stream
// positioned at the next entry header. The reader is unusable afterwards.
func (r *newcReader) Finish() (*stream, error) {
	if r.s == nil {
		return nil, errStreamConsumed
	}
	if err := r.s.skip(r.remain); err != nil {
		return nil, errors.Wrapf(err, "cannot skip content of %q", r.hdr.Name)
	}
	r.remain = 0
	if err := r.s.align(); err != nil {
		return nil, errors.Wrapf(err, "cannot skip padding of %q", r.hdr.Name)
	}
	next := &stream{r: r.s.r, off: r.s.off}
	r.s = nil
	return next, nil
}

// cpioWalker walks the entries of a newc archive. It holds the stream handle
// between entries and reclaims it from the current entry on Next.
type cpioWalker struct {
	s   *stream
	cur *newcReader

	// emptyRegularFiles reports size 0 entries with regular file type bits as files
	emptyRegularFiles bool
}

// newCpioWalker returns a walker reading the archive from r. Every entry
// without content is a directory unless emptyRegularFiles is set, then size 0
// entries whose mode says regular file are files.
func newCpioWalker(r io.Reader, emptyRegularFiles bool) *cpioWalker {
	return &cpioWalker{s: newStream(r), emptyRegularFiles: emptyRegularFiles}
}

// Type returns the archive format name.
func (w *cpioWalker) Type() string {
	return "cpio"
}

// Next returns the next entry. It returns io.EOF once the trailer entry is
// reached; nothing after the trailer entry is read.
func (w *cpioWalker) Next() (archiveEntry, error) {
	if w.cur != nil {
		s, err := w.cur.Finish()
		if err != nil {
			return nil, err
		}
		w.s, w.cur = s, nil
	}

	r, err := readNewc(w.s)
	w.s = nil
	if err != nil {
		return nil, err
	}
	if r.IsTrailer() {
		return nil, io.EOF
	}
	w.cur = r
	return &cpioEntry{r: r, emptyRegularFiles: w.emptyRegularFiles}, nil
}

// cpioEntry is an entry of a newc archive.
type cpioEntry struct {
	r                 *newcReader
	emptyRegularFiles bool
}

// Name returns the path of the entry relative to the extraction root.
func (e *cpioEntry) Name() string {
	return e.r.hdr.Name
}

// Size returns the declared content length.
func (e *cpioEntry) Size() int64 {
	return int64(e.r.hdr.FileSize)
}

// Mode returns the permission bits and, for directories, fs.ModeDir.
func (e *cpioEntry) Mode() fs.FileMode {
	return cpioFileMode(e.r.hdr.Mode, e.IsDir())
}

// ModTime returns the modification time recorded in the header.
func (e *cpioEntry) ModTime() time.Time {
	return time.Unix(int64(e.r.hdr.ModTime), 0)
}

// IsDir returns true for directory markers, which are the entries without
// content. With emptyRegularFiles set, entries without content whose type bits
// say regular file are files.
func (e *cpioEntry) IsDir() bool {
	if e.r.hdr.FileSize != 0 {
		return false
	}
	return !e.emptyRegularFiles || e.r.hdr.Mode&cpioModeType != cpioModeRegular
}

// IsRegular returns true for entries that are written as files.
func (e *cpioEntry) IsRegular() bool {
	return !e.IsDir()
}

// Open returns the content reader. It is valid until the walker advances.
func (e *cpioEntry) Open() (io.ReadCloser, error) {
	if e.r.s == nil {
		return nil, errStreamConsumed
	}
	return &noopReaderCloser{e.r}, nil
}

// cpioFileMode converts cpio mode bits to a [fs.FileMode].
func cpioFileMode(mode uint32, dir bool) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	if mode&cpioModeSetuid != 0 {
		m |= fs.ModeSetuid
	}
	if mode&cpioModeSetgid != 0 {
		m |= fs.ModeSetgid
	}
	if mode&cpioModeSticky != 0 {
		m |= fs.ModeSticky
	}
	if dir {
		m |= fs.ModeDir
	}
	return m
}
