// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-bakeware"
)

// NoopHook is a no operation telemetry hook.
func NoopHook(ctx context.Context, d *bakeware.TelemetryData) {
	// noop
}

// LogHook returns a hook that logs the telemetry data with level info.
func LogHook(logger *slog.Logger) bakeware.TelemetryHook {
	return func(ctx context.Context, d *bakeware.TelemetryData) {
		logger.InfoContext(ctx, "extraction finished", "telemetry", d.String())
	}
}

// Chain returns a hook that calls hooks in order. Nil hooks are skipped.
func Chain(hooks ...bakeware.TelemetryHook) bakeware.TelemetryHook {
	return func(ctx context.Context, d *bakeware.TelemetryData) {
		for _, h := range hooks {
			if h != nil {
				h(ctx, d)
			}
		}
	}
}
