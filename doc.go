// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package bakeware extracts the payload of self-extracting executables.
//
// A self-extracting executable is an arbitrary program prefix followed by a zstd
// compressed cpio ("newc") archive and a fixed 48 byte [Trailer]. The trailer is
// addressed purely from the end of the file, so the reader never needs to know the
// length of the executable prefix:
//
//	+------------------+---------------------------+---------------+
//	| executable bytes | zstd(cpio newc entries)   | trailer (48B) |
//	+------------------+---------------------------+---------------+
//	                   ^ Trailer.ContentOffset
//
// [ReadTrailer] parses the trailer, [ExtractAll] streams the payload entry by entry
// into a [Target]. [Unpack] and [UnpackFile] combine both steps.
//
// Configuration is done using the [Config], which follows the option pattern. The
// default configuration creates the destination directory, refuses to overwrite
// existing files, rejects entries escaping the destination and limits the number of
// files and the extracted size. Telemetry data is captured during the extraction and
// handed to the configured [TelemetryHook].
package bakeware
