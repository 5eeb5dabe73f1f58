// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package testutil builds self-extracting archives for tests.
package testutil

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Mode type bits of cpio entries.
const (
	ModeDir     = 0o040000
	ModeRegular = 0o100000
	ModeSymlink = 0o120000
)

// Compression codes of the trailer.
const (
	CompressionNone = 0
	CompressionZstd = 1
)

// Entry is one entry of a cpio newc archive.
type Entry struct {
	Name    string
	Mode    uint32
	ModTime uint32
	Data    []byte
}

// Dir returns a directory entry with perm.
func Dir(name string, perm uint32) Entry {
	return Entry{Name: name, Mode: ModeDir | perm}
}

// File returns a regular file entry with perm and content.
func File(name string, perm uint32, content string) Entry {
	return Entry{Name: name, Mode: ModeRegular | perm, Data: []byte(content)}
}

// NewcHeader returns the 110 byte header for e with the given name size.
func NewcHeader(e Entry, nameSize int) []byte {
	return []byte(fmt.Sprintf("070701%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X",
		0, e.Mode, 0, 0, 1, e.ModTime, len(e.Data), 0, 0, 0, 0, nameSize, 0))
}

// WriteEntry appends e, including name and padding, to buf.
func WriteEntry(buf *bytes.Buffer, e Entry) {
	buf.Write(NewcHeader(e, len(e.Name)+1))
	buf.WriteString(e.Name)
	buf.WriteByte(0)
	pad(buf)
	buf.Write(e.Data)
	pad(buf)
}

// Newc returns a cpio newc archive holding entries followed by the TRAILER!!! entry.
func Newc(entries ...Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		WriteEntry(&buf, e)
	}
	WriteEntry(&buf, Entry{Name: "TRAILER!!!"})
	return buf.Bytes()
}

func pad(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

// Zstd compresses data into a single zstd frame.
func Zstd(data []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

// Trailer holds the trailer fields.
type Trailer struct {
	Magic         string
	Version       uint8
	Compression   uint8
	Flags         uint16
	ContentOffset int32
	ContentLength int32
	Digest        [20]byte
}

// Encode returns the 48 byte trailer. An empty Magic encodes "BAKE".
func (t Trailer) Encode() []byte {
	b := make([]byte, 48)
	copy(b[0:20], t.Digest[:])
	binary.BigEndian.PutUint32(b[32:36], uint32(t.ContentLength))
	binary.BigEndian.PutUint32(b[36:40], uint32(t.ContentOffset))
	binary.BigEndian.PutUint16(b[40:42], t.Flags)
	b[42] = t.Compression
	b[43] = t.Version
	magic := t.Magic
	if magic == "" {
		magic = "BAKE"
	}
	copy(b[44:48], magic)
	return b
}

// Bake returns prefix, payload and a trailer pointing at payload. The trailer
// digest is the SHA-1 of payload.
func Bake(prefix, payload []byte, compression uint8) []byte {
	t := Trailer{
		Version:       1,
		Compression:   compression,
		ContentOffset: int32(len(prefix)),
		ContentLength: int32(len(payload)),
		Digest:        sha1.Sum(payload),
	}
	out := make([]byte, 0, len(prefix)+len(payload)+48)
	out = append(out, prefix...)
	out = append(out, payload...)
	return append(out, t.Encode()...)
}

// BakeZstd compresses the newc archive of entries and bakes it behind prefix.
func BakeZstd(prefix []byte, entries ...Entry) []byte {
	return Bake(prefix, Zstd(Newc(entries...)), CompressionZstd)
}
