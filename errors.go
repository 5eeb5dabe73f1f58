// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBadMagic is the kind of a [FormatError] raised when the trailer or an
	// archive entry header does not start with the expected magic bytes.
	ErrBadMagic = errors.New("bad magic")

	// ErrUnsupportedCompression is the kind of a [FormatError] raised when the
	// trailer names a compression that cannot be decoded.
	ErrUnsupportedCompression = errors.New("unsupported compression")

	// ErrMalformedEntry is the kind of a [FormatError] raised when an archive entry
	// header or name cannot be decoded.
	ErrMalformedEntry = errors.New("malformed archive entry")

	// ErrMalformedTrailer is the kind of a [FormatError] raised when trailer fields
	// carry values that cannot locate a payload.
	ErrMalformedTrailer = errors.New("malformed trailer")

	// ErrMaxFilesExceeded indicates that the maximum number of files is exceeded.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded indicates that the maximum size is exceeded.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded indicates that the compressed payload is larger
	// than the configured maximum.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")
)

// FormatError describes input that violates the self-extracting archive format.
// Use [errors.Is] with one of the kind sentinels to classify it.
type FormatError struct {
	// Kind is one of ErrBadMagic, ErrUnsupportedCompression, ErrMalformedEntry
	// or ErrMalformedTrailer.
	Kind error

	// Expected and Actual hold the magic bytes for ErrBadMagic.
	Expected []byte
	Actual   []byte

	// Compression holds the offending code for ErrUnsupportedCompression.
	Compression Compression

	// Msg adds detail to the error message.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := e.Kind.Error()
	switch {
	case e.Kind == ErrBadMagic:
		msg = fmt.Sprintf("%s: expected %q, got %q", msg, e.Expected, e.Actual)
	case e.Kind == ErrUnsupportedCompression:
		msg = fmt.Sprintf("%s: %s", msg, e.Compression)
	}
	if len(e.Msg) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

// Unwrap returns the kind and, if present, the underlying cause.
func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// badMagic returns a [FormatError] for a magic mismatch.
func badMagic(expected, actual []byte, where string) *FormatError {
	return &FormatError{
		Kind:     ErrBadMagic,
		Expected: append([]byte(nil), expected...),
		Actual:   append([]byte(nil), actual...),
		Msg:      where,
	}
}

// malformedEntry returns a [FormatError] for an undecodable archive entry.
func malformedEntry(err error, format string, args ...interface{}) *FormatError {
	return &FormatError{
		Kind: ErrMalformedEntry,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}
