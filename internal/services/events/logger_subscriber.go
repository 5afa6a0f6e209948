package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs events.
// Credential values are logged as fingerprints only.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		switch payload := event.Payload.(type) {
		case *models.CaptureEvent:
			logCapture(logger, payload)
		case *models.EndpointTrackedEvent:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Str("page_domain", payload.PageDomain).
				Str("method", payload.Method).
				Str("url", common.MaskQuery(payload.URL)).
				Msg("Endpoint tracked")
		case *models.CaptureConfig:
			logger.Info().
				Str("event_type", string(event.Type)).
				Bool("enabled", payload.Enabled).
				Int("allowed_domains", len(payload.AllowedDomains)).
				Int("blocked_domains", len(payload.BlockedDomains)).
				Int("custom_rules", len(payload.CustomRules)).
				Msg("Capture config changed")
		default:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Msg("Event published")
		}
		return nil
	}
}

func logCapture(logger arbor.ILogger, event *models.CaptureEvent) {
	if event.Stored == nil || event.Extraction == nil {
		return
	}

	if event.RotationDetected {
		logEvent := logger.Warn().
			Str("key", event.Stored.Key).
			Str("type", string(event.Stored.Type)).
			Int("rotation_count", event.Stored.RotationCount).
			Str("fingerprint", common.Fingerprint(event.Stored.Value))
		if event.Previous != nil {
			logEvent = logEvent.Str("previous_fingerprint", common.Fingerprint(event.Previous.Value))
		}
		logEvent.Msg("Credential rotated")
		return
	}

	logger.Info().
		Str("key", event.Stored.Key).
		Str("type", string(event.Stored.Type)).
		Str("extractor", event.Extraction.ExtractorName).
		Str("fingerprint", common.Fingerprint(event.Stored.Value)).
		Msg("Credential captured")
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventCredentialCaptured,
		interfaces.EventEndpointTracked,
		interfaces.EventCaptureConfigChanged,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
