// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFormatErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bad magic",
			err:  badMagic([]byte("BAKE"), []byte("ZZZZ"), "trailer"),
			want: `bad magic: expected "BAKE", got "ZZZZ": trailer`,
		},
		{
			name: "unsupported compression",
			err:  &FormatError{Kind: ErrUnsupportedCompression, Compression: 3},
			want: "unsupported compression: unknown code 3",
		},
		{
			name: "malformed entry with cause",
			err:  malformedEntry(io.ErrUnexpectedEOF, "truncated name"),
			want: "malformed archive entry: truncated name: unexpected EOF",
		},
		{
			name: "malformed trailer",
			err:  &FormatError{Kind: ErrMalformedTrailer, Msg: "negative content offset -1"},
			want: "malformed trailer: negative content offset -1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestFormatErrorUnwrap(t *testing.T) {
	err := errors.Wrap(malformedEntry(io.ErrUnexpectedEOF, "truncated header"), "error reading")

	assert.True(t, errors.Is(err, ErrMalformedEntry))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrBadMagic))

	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "truncated header", fe.Msg)
}
