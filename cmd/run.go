// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	"github.com/hashicorp/go-bakeware"
	"github.com/hashicorp/go-bakeware/telemetry"
)

// CLI are the cli parameters for the unbake binary
type CLI struct {
	Verbose bool             `short:"v" optional:"" help:"Verbose logging."`
	Version kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`

	Extract ExtractCmd `cmd:"" default:"withargs" help:"Extract the payload of a self-extracting archive."`
	Inspect InspectCmd `cmd:"" help:"Print the trailer of a self-extracting archive as JSON."`
}

// ExtractCmd are the parameters of the extract command
type ExtractCmd struct {
	Archive             string `arg:"" name:"archive" default:"./target" help:"Path to the self-extracting archive."`
	Destination         string `arg:"" name:"destination" default:"./out" help:"Output directory."`
	EmptyFiles          bool   `short:"E" help:"Extract empty entries with regular file mode as empty files instead of directories."`
	EventBus            string `optional:"" help:"Publish telemetry to this CloudWatch Events bus (\"default\" for the account default bus)."`
	FollowSymlinks      bool   `short:"F" help:"[Dangerous!] Follow symlinks to directories during extraction."`
	InsecureTraversal   bool   `help:"[Dangerous!] Do not check entry names for path traversal."`
	MaxExtractionSize   int64  `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	MaxExtractionTime   int64  `optional:"" default:"60" help:"Maximum time that an extraction should take (in seconds). (disable check: -1)"`
	MaxFiles            int64  `optional:"" default:"100000" help:"Maximum files and directories that are extracted before stop. (disable check: -1)"`
	MaxInputSize        int64  `optional:"" default:"1073741824" help:"Maximum compressed payload size that allowed is (in bytes). (disable check: -1)"`
	NoCreateDestination bool   `short:"N" help:"Fail if the destination directory does not exist."`
	Overwrite           bool   `short:"O" help:"Overwrite if exist."`
	PreserveModTime     bool   `short:"p" help:"Restore modification times recorded in the archive."`
	Self                bool   `short:"s" help:"Extract the payload appended to this executable."`
	StrictContentLength bool   `help:"Read no more than the content length recorded in the trailer."`
	Telemetry           bool   `short:"T" optional:"" default:"false" help:"Print telemetry data to log after extraction."`
}

// InspectCmd are the parameters of the inspect command
type InspectCmd struct {
	Archive string `arg:"" name:"archive" default:"./target" help:"Path to the self-extracting archive."`
	Self    bool   `short:"s" help:"Inspect this executable."`
}

// globals are shared by all commands
type globals struct {
	ctx    context.Context
	logger *slog.Logger
	out    io.Writer
}

// Run the entrypoint into go-bakeware as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("unbake"),
		kong.Description("Extract self-extracting archives"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	g := &globals{ctx: context.Background(), logger: logger, out: os.Stdout}
	if err := kctx.Run(g); err != nil {
		logger.Error("unbake failed", "command", kctx.Command(), "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

// Run extracts the archive.
func (c *ExtractCmd) Run(g *globals) error {
	archive, err := archivePath(c.Archive, c.Self)
	if err != nil {
		return err
	}

	hooks := []bakeware.TelemetryHook{}
	if c.Telemetry {
		hooks = append(hooks, telemetry.LogHook(g.logger))
	}
	if len(c.EventBus) > 0 {
		publisher, err := newPublisher(g.ctx, c.EventBus, g.logger)
		if err != nil {
			return err
		}
		hooks = append(hooks, publisher.Hook())
	}

	cfg := bakeware.NewConfig(
		bakeware.WithCreateDestination(!c.NoCreateDestination),
		bakeware.WithEmptyRegularFiles(c.EmptyFiles),
		bakeware.WithInsecureAllowTraversal(c.InsecureTraversal),
		bakeware.WithInsecureTraverseSymlinks(c.FollowSymlinks),
		bakeware.WithLogger(g.logger),
		bakeware.WithMaxExtractionSize(c.MaxExtractionSize),
		bakeware.WithMaxFiles(c.MaxFiles),
		bakeware.WithMaxInputSize(c.MaxInputSize),
		bakeware.WithOverwrite(c.Overwrite),
		bakeware.WithPreserveModTime(c.PreserveModTime),
		bakeware.WithStrictContentLength(c.StrictContentLength),
		bakeware.WithTelemetryHook(telemetry.Chain(hooks...)),
	)

	ctx := g.ctx
	if c.MaxExtractionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second*time.Duration(c.MaxExtractionTime))
		defer cancel()
	}

	if err := bakeware.UnpackFile(ctx, archive, c.Destination, cfg); err != nil {
		return fmt.Errorf("error during extraction: %w", err)
	}
	return nil
}

// Run prints the trailer.
func (c *InspectCmd) Run(g *globals) error {
	archive, err := archivePath(c.Archive, c.Self)
	if err != nil {
		return err
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("opening archive failed: %w", err)
	}
	defer f.Close()

	trailer, err := bakeware.ReadTrailer(f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(g.out)
	enc.SetIndent("", "  ")
	return enc.Encode(trailer)
}

// archivePath returns the running executable if self is set, otherwise path.
func archivePath(path string, self bool) (string, error) {
	if !self {
		return path, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("cannot locate executable: %w", err)
	}
	return exe, nil
}

// newPublisher creates a telemetry publisher from the default AWS configuration.
func newPublisher(ctx context.Context, eventBus string, logger *slog.Logger) (*telemetry.Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load aws configuration: %w", err)
	}
	if eventBus == "default" {
		eventBus = ""
	}
	client := cloudwatchevents.NewFromConfig(awsCfg)
	return telemetry.NewPublisher(client, eventBus, telemetry.WithLogger(logger)), nil
}
