// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"bytes"
	"io"
	"testing"

	"github.com/hashicorp/go-bakeware/internal/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionString(t *testing.T) {
	tests := []struct {
		c     Compression
		want  string
		known bool
	}{
		{c: CompressionNone, want: "none", known: true},
		{c: CompressionZstd, want: "zstd", known: true},
		{c: 2, want: "unknown code 2", known: false},
		{c: 255, want: "unknown code 255", known: false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.String())
			assert.Equal(t, tt.known, tt.c.Known())
		})
	}
}

func TestDecompressorFor(t *testing.T) {
	tests := []struct {
		name    string
		c       Compression
		wantErr string
	}{
		{name: "zstd", c: CompressionZstd},
		{name: "none", c: CompressionNone, wantErr: "unsupported compression: none"},
		{name: "unknown", c: 7, wantErr: "unsupported compression: unknown code 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := decompressorFor(tt.c)
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, fn)
				return
			}
			require.EqualError(t, err, tt.wantErr)
			assert.Nil(t, fn)
			assert.True(t, errors.Is(err, ErrUnsupportedCompression))

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.c, fe.Compression)
		})
	}
}

func TestDecompressZstdStream(t *testing.T) {
	data := bytes.Repeat([]byte("self-extracting "), 1024)

	r, err := decompressZstdStream(bytes.NewReader(testutil.Zstd(data)), NewConfig())
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecompressZstdStreamCorrupt(t *testing.T) {
	r, err := decompressZstdStream(bytes.NewReader([]byte("this is not zstd")), NewConfig(WithMaxDecoderMemory(1<<20)))
	if err == nil {
		defer r.Close()
		_, err = io.ReadAll(r)
	}
	require.Error(t, err)
}
