// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package telemetry provides [bakeware.TelemetryHook] implementations that hand the
// telemetry data of an extraction to a logger or publish it as an Amazon EventBridge
// (CloudWatch Events) event.
package telemetry
