// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies the algorithm used for the payload, as recorded in
// the trailer.
type Compression uint8

const (
	// CompressionNone marks an uncompressed payload. It is part of the format
	// but not implemented by this reader.
	CompressionNone Compression = 0

	// CompressionZstd marks a zstandard compressed payload.
	CompressionZstd Compression = 1
)

// String returns the name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown code %d", uint8(c))
	}
}

// Known returns true if c is one of the codes defined by the format.
func (c Compression) Known() bool {
	switch c {
	case CompressionNone, CompressionZstd:
		return true
	default:
		return false
	}
}

// decompressionFunc wraps a compressed stream into a decompressing reader.
type decompressionFunc func(src io.Reader, cfg *Config) (io.ReadCloser, error)

// decompressorFor returns the decompression function for c, or a
// [FormatError] if the payload cannot be decoded.
func decompressorFor(c Compression) (decompressionFunc, error) {
	switch c {
	case CompressionZstd:
		return decompressZstdStream, nil
	default:
		return nil, &FormatError{Kind: ErrUnsupportedCompression, Compression: c}
	}
}

// decompressZstdStream returns a streaming zstandard decoder reading from src.
// The decoder runs on the calling goroutine only.
func decompressZstdStream(src io.Reader, cfg *Config) (io.ReadCloser, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if cfg.MaxDecoderMemory() > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(cfg.MaxDecoderMemory()))
	}
	dec, err := zstd.NewReader(bufio.NewReader(src), opts...)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
