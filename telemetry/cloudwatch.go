// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package telemetry

//go:generate mockgen -destination=mock_put_events_test.go -package=telemetry_test . PutEventsAPI

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents/types"
	"github.com/hashicorp/go-bakeware"
)

const (
	// DefaultSource is the event source used when none is configured.
	DefaultSource = "bakeware.unbake"

	// DetailType is the detail type of published events.
	DetailType = "Extraction Finished"
)

// PutEventsAPI is the part of the CloudWatch Events client used by [Publisher].
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *cloudwatchevents.PutEventsInput, optFns ...func(*cloudwatchevents.Options)) (*cloudwatchevents.PutEventsOutput, error)
}

// Publisher sends telemetry data as events to an event bus.
type Publisher struct {
	client   PutEventsAPI
	eventBus string
	source   string
	logger   *slog.Logger
	now      func() time.Time
}

// PublisherOption adjusts a [Publisher].
type PublisherOption func(*Publisher)

// WithSource sets the event source.
func WithSource(source string) PublisherOption {
	return func(p *Publisher) {
		p.source = source
	}
}

// WithLogger sets the logger that receives publishing errors.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher that puts events on eventBus. An empty eventBus
// selects the default bus of the account.
func NewPublisher(client PutEventsAPI, eventBus string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:   client,
		eventBus: eventBus,
		source:   DefaultSource,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish puts d as a single event on the event bus.
func (p *Publisher) Publish(ctx context.Context, d *bakeware.TelemetryData) error {
	detail, err := d.MarshalJSON()
	if err != nil {
		return fmt.Errorf("cannot encode telemetry data: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		Detail:     aws.String(string(detail)),
		DetailType: aws.String(DetailType),
		Source:     aws.String(p.source),
		Time:       aws.Time(p.now()),
	}
	if len(p.eventBus) > 0 {
		entry.EventBusName = aws.String(p.eventBus)
	}

	out, err := p.client.PutEvents(ctx, &cloudwatchevents.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("cannot put event: %w", err)
	}
	if out.FailedEntryCount > 0 {
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("event rejected: %s: %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("event rejected")
	}
	return nil
}

// Hook returns a telemetry hook that publishes the data. Errors are logged, the
// extraction result is not affected.
func (p *Publisher) Hook() bakeware.TelemetryHook {
	return func(ctx context.Context, d *bakeware.TelemetryData) {
		if err := p.Publish(ctx, d); err != nil {
			p.logger.WarnContext(ctx, "cannot publish telemetry", "error", err)
		}
	}
}
