// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// now is a function point that returns time.Now to the caller.
var now = time.Now

// UnpackFile extracts the self-extracting archive at path into dst on disk.
func UnpackFile(ctx context.Context, path string, dst string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "cannot open archive")
	}
	defer f.Close()

	return Unpack(ctx, NewTargetDisk(), f, dst, cfg)
}

// Unpack reads the trailer at the end of src and extracts the payload into dst on t.
// A nil t extracts to disk, a nil cfg uses [NewConfig] defaults.
func Unpack(ctx context.Context, t Target, src io.ReadSeeker, dst string, cfg *Config) error {
	t, cfg = defaults(t, cfg)

	td := &TelemetryData{ExtractedType: "cpio"}
	defer finishTelemetry(ctx, cfg, td, now())

	trailer, err := ReadTrailer(src)
	if err != nil {
		return handleError(cfg, td, "cannot read trailer", err)
	}
	return extractAll(ctx, t, src, trailer, dst, cfg, td)
}

// ExtractAll extracts the payload located by trailer from src into dst on t.
//
// The compression is checked before anything is written. Entries are processed in
// archive order until the TRAILER!!! entry; the first error aborts the extraction and
// everything written up to that point is left in place.
func ExtractAll(ctx context.Context, t Target, src io.ReadSeeker, trailer *Trailer, dst string, cfg *Config) error {
	t, cfg = defaults(t, cfg)

	td := &TelemetryData{ExtractedType: "cpio"}
	defer finishTelemetry(ctx, cfg, td, now())

	return extractAll(ctx, t, src, trailer, dst, cfg, td)
}

// defaults fills in the disk target and the default configuration.
func defaults(t Target, cfg *Config) (Target, *Config) {
	if t == nil {
		t = NewTargetDisk()
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	return t, cfg
}

// extractAll locates and decompresses the payload and walks its entries.
func extractAll(ctx context.Context, t Target, src io.ReadSeeker, trailer *Trailer, dst string, cfg *Config, td *TelemetryData) error {
	if trailer == nil {
		return handleError(cfg, td, "no trailer", &FormatError{Kind: ErrMalformedTrailer, Msg: "missing"})
	}
	td.Compression = trailer.Compression.String()
	td.TrailerVersion = trailer.Version

	if trailer.ContentOffset < 0 {
		return handleError(cfg, td, "cannot locate payload", &FormatError{
			Kind: ErrMalformedTrailer,
			Msg:  fmt.Sprintf("negative content offset %d", trailer.ContentOffset),
		})
	}

	// nothing may be written for a payload that cannot be decoded
	decompress, err := decompressorFor(trailer.Compression)
	if err != nil {
		return handleError(cfg, td, "cannot decode payload", err)
	}

	if _, err := src.Seek(int64(trailer.ContentOffset), io.SeekStart); err != nil {
		return handleError(cfg, td, "cannot seek to payload", err)
	}

	var payload io.Reader = src
	if cfg.StrictContentLength() {
		if trailer.ContentLength < 0 {
			return handleError(cfg, td, "cannot bound payload", &FormatError{
				Kind: ErrMalformedTrailer,
				Msg:  fmt.Sprintf("negative content length %d", trailer.ContentLength),
			})
		}
		payload = io.LimitReader(src, int64(trailer.ContentLength))
	}

	ler := newLimitErrorReader(payload, cfg.MaxInputSize())
	defer captureInputSize(td, ler)

	dec, err := decompress(ler, cfg)
	if err != nil {
		return handleError(cfg, td, "cannot start decompression", err)
	}
	defer dec.Close()

	if err := createDestination(t, dst, cfg); err != nil {
		return handleError(cfg, td, "cannot create destination", err)
	}

	return extract(ctx, t, newCpioWalker(dec, cfg.EmptyRegularFiles()), dst, cfg, td)
}

// extract checks ctx for cancellation, while it walks the entries of src and writes them to dst.
func extract(ctx context.Context, t Target, src archiveWalker, dst string, cfg *Config, td *TelemetryData) error {
	cfg.Logger().Info("start extraction", "type", src.Type(), "compression", td.Compression)

	var objectCounter int64
	var extractedBytes int64

	for {
		// check if context is canceled
		if ctx.Err() != nil {
			return handleError(cfg, td, "context error", ctx.Err())
		}

		// get next entry
		ae, err := src.Next()
		switch {

		// trailer entry reached
		case err == io.EOF:
			cfg.Logger().Info("extraction finished", "files", td.ExtractedFiles, "dirs", td.ExtractedDirs)
			return nil

		case err != nil:
			return handleError(cfg, td, "error reading", err)
		}

		// check if maximum of objects is exceeded
		objectCounter++
		if err := cfg.CheckMaxFiles(objectCounter); err != nil {
			return handleError(cfg, td, "max objects check failed", err)
		}

		// check if name is just current working dir
		if filepath.Clean(filepath.FromSlash(ae.Name())) == "." {
			cfg.Logger().Debug("skip root entry", "name", ae.Name())
			continue
		}

		outPath := entryPath(dst, ae.Name())
		cfg.Logger().Debug("extract", "name", ae.Name(), "size", ae.Size(), "mode", ae.Mode())

		switch {

		// directory marker, keep existing directories as they are
		case ae.IsDir():
			if err := securityCheck(t, dst, ae.Name(), cfg); err != nil {
				return handleError(cfg, td, "security check failed", err)
			}
			if fi, err := t.Stat(outPath); err == nil && fi.IsDir() {
				td.SkippedDirs++
				continue
			}

			if err := createDir(t, dst, ae.Name(), ae.Mode().Perm(), cfg); err != nil {
				return handleError(cfg, td, "failed to create directory", err)
			}
			if err := t.Chmod(outPath, ae.Mode()); err != nil {
				return handleError(cfg, td, "failed to set directory mode", err)
			}
			if err := restoreModTime(t, outPath, ae.ModTime(), cfg); err != nil {
				return handleError(cfg, td, "failed to set directory time", err)
			}

			td.ExtractedDirs++

		// everything with content is written as a regular file
		case ae.IsRegular():

			// check extraction size
			if err := cfg.CheckExtractionSize(extractedBytes + ae.Size()); err != nil {
				return handleError(cfg, td, "max extraction size exceeded", err)
			}

			fin, err := ae.Open()
			if err != nil {
				return handleError(cfg, td, "failed to open file", err)
			}

			maxSize := int64(-1)
			if cfg.MaxExtractionSize() >= 0 {
				maxSize = cfg.MaxExtractionSize() - extractedBytes
			}

			writtenBytes, err := createFile(t, dst, ae.Name(), fin, ae.Mode(), maxSize, cfg)
			fin.Close()
			extractedBytes += writtenBytes
			td.ExtractionSize = extractedBytes
			if err != nil {
				return handleError(cfg, td, "failed to create file", err)
			}

			if err := t.Chmod(outPath, ae.Mode()); err != nil {
				return handleError(cfg, td, "failed to set file mode", err)
			}
			if err := restoreModTime(t, outPath, ae.ModTime(), cfg); err != nil {
				return handleError(cfg, td, "failed to set file time", err)
			}

			td.ExtractedFiles++
		}
	}
}

// restoreModTime sets the modification time from the archive if configured.
func restoreModTime(t Target, path string, mtime time.Time, cfg *Config) error {
	if !cfg.PreserveModTime() {
		return nil
	}
	return t.Chtimes(path, mtime, mtime)
}

// handleError increases the error counter, sets the latest error and
// returns it wrapped with msg.
func handleError(c *Config, td *TelemetryData, msg string, err error) error {
	td.ExtractionErrors++
	td.LastExtractionError = errors.Wrap(err, msg)
	c.Logger().Error(msg, "error", err)
	return td.LastExtractionError
}

// finishTelemetry captures the duration and hands td to the telemetry hook.
func finishTelemetry(ctx context.Context, c *Config, td *TelemetryData, start time.Time) {
	captureExtractionDuration(td, start)
	c.TelemetryHook()(ctx, td)
}

// captureExtractionDuration captures the duration of the extraction
func captureExtractionDuration(td *TelemetryData, start time.Time) {
	stop := now()
	td.ExtractionDuration = stop.Sub(start)
}

// captureInputSize captures the input size of the extraction
func captureInputSize(td *TelemetryData, ler *limitErrorReader) {
	td.InputSize = ler.ReadBytes()
}
