// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// TrailerMagic identifies a self-extracting archive. It occupies the last four
// bytes of the file.
const TrailerMagic = "BAKE"

// TrailerLength is the size of the trailer at the end of the file.
const TrailerLength = 48

// End-relative offsets of the trailer fields. Every field is read on its own,
// so a writer may put any number of bytes in front of the payload.
const (
	offsetMagic         = 4
	offsetVersion       = 5
	offsetCompression   = 6
	offsetFlags         = 8
	offsetContentOffset = 12
	offsetContentLength = 16
	offsetDigest        = 48
)

// digestSHA1 is the algorithm of the trailer digest. It is not registered with
// go-digest, so digests built with it are for display only.
const digestSHA1 digest.Algorithm = "sha1"

// Trailer locates the payload within a self-extracting archive.
type Trailer struct {
	// Version is the trailer layout version.
	Version uint8

	// Compression is the payload compression.
	Compression Compression

	// Flags are reserved and not interpreted.
	Flags uint16

	// ContentOffset is the absolute offset of the payload.
	ContentOffset int32

	// ContentLength is the length of the payload in bytes.
	ContentLength int32

	// Digest is the SHA-1 of the payload. It is carried but not verified.
	Digest [20]byte
}

// DigestString returns the payload digest in algorithm:hex notation.
func (t *Trailer) DigestString() string {
	return digest.NewDigestFromEncoded(digestSHA1, hex.EncodeToString(t.Digest[:])).String()
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (t Trailer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Version       uint8  `json:"version"`
		Compression   string `json:"compression"`
		Flags         uint16 `json:"flags"`
		ContentOffset int32  `json:"content_offset"`
		ContentLength int32  `json:"content_length"`
		Digest        string `json:"digest"`
	}{
		Version:       t.Version,
		Compression:   t.Compression.String(),
		Flags:         t.Flags,
		ContentOffset: t.ContentOffset,
		ContentLength: t.ContentLength,
		Digest:        t.DigestString(),
	})
}

// ReadTrailer parses the trailer at the end of src. Each field is read with its
// own seek relative to the end of src; only the read position of src changes.
//
// If the last four bytes are not [TrailerMagic], a [FormatError] of kind
// [ErrBadMagic] is returned and no other field is read.
func ReadTrailer(src io.ReadSeeker) (*Trailer, error) {
	magic := make([]byte, len(TrailerMagic))
	if err := readAtEnd(src, offsetMagic, magic); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer magic")
	}
	if !bytes.Equal(magic, []byte(TrailerMagic)) {
		return nil, badMagic([]byte(TrailerMagic), magic, "trailer")
	}

	var t Trailer
	var b1 [1]byte
	if err := readAtEnd(src, offsetVersion, b1[:]); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer version")
	}
	t.Version = b1[0]

	if err := readAtEnd(src, offsetCompression, b1[:]); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer compression")
	}
	t.Compression = Compression(b1[0])

	var b2 [2]byte
	if err := readAtEnd(src, offsetFlags, b2[:]); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer flags")
	}
	t.Flags = binary.BigEndian.Uint16(b2[:])

	var b4 [4]byte
	if err := readAtEnd(src, offsetContentOffset, b4[:]); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer content offset")
	}
	t.ContentOffset = int32(binary.BigEndian.Uint32(b4[:]))

	if err := readAtEnd(src, offsetContentLength, b4[:]); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer content length")
	}
	t.ContentLength = int32(binary.BigEndian.Uint32(b4[:]))

	if err := readAtEnd(src, offsetDigest, t.Digest[:]); err != nil {
		return nil, errors.Wrap(err, "cannot read trailer digest")
	}

	return &t, nil
}

// readAtEnd seeks to offset bytes before the end of src and fills buf.
func readAtEnd(src io.ReadSeeker, offset int64, buf []byte) error {
	if _, err := src.Seek(-offset, io.SeekEnd); err != nil {
		return err
	}
	_, err := io.ReadFull(src, buf)
	return err
}
