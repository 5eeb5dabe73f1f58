// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package bakeware

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for the extraction process.
// The configuration options can be adjusted using the option pattern style.
//
// The default configuration is designed to be secure by default and prevent exhaustion,
// path traversal and symlink attacks.
type Config struct {
	// create destination directory if it does not exist
	createDestination bool

	// emptyRegularFiles extracts size 0 entries with regular file mode as empty files instead of directories
	emptyRegularFiles bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// insecureAllowTraversal disables the path traversal and symlink checks for entry names
	insecureAllowTraversal bool

	// logger stream for extraction
	logger logger

	// maxDecoderMemory limits the memory of the zstd decoder. 0 keeps the library default.
	maxDecoderMemory uint64

	// maxExtractionSize is the maximum size over all extracted files.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of files and directories in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of the compressed payload.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// Define if files should be overwritten in the destination
	overwrite bool

	// preserveModTime restores the modification time recorded in the archive
	preserveModTime bool

	// strictContentLength bounds the compressed input to the content length of the trailer
	strictContentLength bool

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook

	// traverseSymlinks traverses symlinks to directories during extraction
	traverseSymlinks bool
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckExtractionSize checks if fileSize exceeds configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(fileSize int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if fileSize > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// EmptyRegularFiles returns true if entries without content, whose mode marks
// them as regular files, are extracted as empty files instead of directories.
func (c *Config) EmptyRegularFiles() bool {
	return c.emptyRegularFiles
}

// InsecureAllowTraversal returns true if entry names are joined onto the
// destination without path traversal and symlink checks.
func (c *Config) InsecureAllowTraversal() bool {
	return c.insecureAllowTraversal
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxDecoderMemory returns the memory limit of the zstd decoder, 0 if unset.
func (c *Config) MaxDecoderMemory() uint64 {
	return c.maxDecoderMemory
}

// MaxExtractionSize returns the maximum size over all extracted files.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of files and directories in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the compressed payload.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// PreserveModTime returns true if the modification time of the archive
// entries should be restored.
func (c *Config) PreserveModTime() bool {
	return c.preserveModTime
}

// StrictContentLength returns true if no more than the content length
// recorded in the trailer is read from the source.
func (c *Config) StrictContentLength() bool {
	return c.strictContentLength
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// TraverseSymlinks returns true if symlinks should be traversed during extraction.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

const (
	defaultCreateDestination      = true          // create destination directory
	defaultCustomCreateDirMode    = 0750          // default directory permissions rwxr-x---
	defaultEmptyRegularFiles      = false         // entries without content are directories
	defaultInsecureAllowTraversal = false         // reject entries escaping the destination
	defaultMaxDecoderMemory       = 0             // library default
	defaultMaxFiles               = 100000        // 100k files
	defaultMaxExtractionSize      = 1 << (10 * 3) // 1 Gb
	defaultMaxInputSize           = 1 << (10 * 3) // 1 Gb
	defaultOverwrite              = false         // don't overwrite existing files
	defaultPreserveModTime        = false         // keep the extraction time
	defaultStrictContentLength    = false         // payload is self-terminating
	defaultTraverseSymlinks       = false         // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		createDestination:      defaultCreateDestination,
		customCreateDirMode:    defaultCustomCreateDirMode,
		emptyRegularFiles:      defaultEmptyRegularFiles,
		insecureAllowTraversal: defaultInsecureAllowTraversal,
		logger:                 defaultLogger,
		maxDecoderMemory:       defaultMaxDecoderMemory,
		maxFiles:               defaultMaxFiles,
		maxExtractionSize:      defaultMaxExtractionSize,
		maxInputSize:           defaultMaxInputSize,
		overwrite:              defaultOverwrite,
		preserveModTime:        defaultPreserveModTime,
		strictContentLength:    defaultStrictContentLength,
		telemetryHook:          defaultTelemetryHook,
		traverseSymlinks:       defaultTraverseSymlinks,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithEmptyRegularFiles options pattern function to extract entries without
// content as empty files, if their mode marks them as regular files.
func WithEmptyRegularFiles(enable bool) ConfigOption {
	return func(c *Config) {
		c.emptyRegularFiles = enable
	}
}

// WithInsecureAllowTraversal options pattern function to join entry names onto
// the destination without any check. Only use it for archives from a trusted source.
func WithInsecureAllowTraversal(allow bool) ConfigOption {
	return func(c *Config) {
		c.insecureAllowTraversal = allow
	}
}

// WithInsecureTraverseSymlinks options pattern function to traverse symlinks during extraction.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxDecoderMemory options pattern function to limit the memory the zstd
// decoder may allocate for its window. (0 keeps the library default)
func WithMaxDecoderMemory(maxMemory uint64) ConfigOption {
	return func(c *Config) {
		c.maxDecoderMemory = maxMemory
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all
// extracted files. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted
// files and directories during the extraction. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set the maximum size of the
// compressed payload. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPreserveModTime options pattern function to restore the modification
// time recorded in the archive entries.
func WithPreserveModTime(preserve bool) ConfigOption {
	return func(c *Config) {
		c.preserveModTime = preserve
	}
}

// WithStrictContentLength options pattern function to read no more than the
// content length recorded in the trailer from the source.
func WithStrictContentLength(strict bool) ConfigOption {
	return func(c *Config) {
		c.strictContentLength = strict
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
