package capture

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
	"github.com/ternarybob/tokenscope/internal/services/extractors"
	"github.com/ternarybob/tokenscope/internal/services/filter"
	"github.com/ternarybob/tokenscope/internal/services/identity"
	"github.com/ternarybob/tokenscope/internal/services/usage"
)

// Service runs intercepted requests through the domain filter, the extraction
// dispatcher, the identity engine and the usage aggregator.
//
// Requests rejected by the domain filter or the global toggle are neither
// extracted nor counted. Supplemental records only contribute cookie
// credentials, since every other source was read from the original record.
type Service struct {
	dispatcher  *extractors.Dispatcher
	credentials interfaces.CredentialService
	usage       interfaces.UsageService
	eventSvc    interfaces.EventService
	logger      arbor.ILogger
	validate    *validator.Validate

	mu     sync.RWMutex
	config *models.CaptureConfig
	tabs   interfaces.TabResolver
}

// NewService creates the pipeline and subscribes it to capture config changes
func NewService(
	config *models.CaptureConfig,
	credentials interfaces.CredentialService,
	usageSvc interfaces.UsageService,
	eventSvc interfaces.EventService,
	logger arbor.ILogger,
) (*Service, error) {
	if credentials == nil {
		return nil, fmt.Errorf("credential service cannot be nil")
	}
	if usageSvc == nil {
		return nil, fmt.Errorf("usage service cannot be nil")
	}
	if eventSvc == nil {
		return nil, fmt.Errorf("event service cannot be nil")
	}
	if config == nil {
		config = models.NewDefaultCaptureConfig()
	}

	s := &Service{
		dispatcher:  extractors.NewDispatcher(config, logger),
		credentials: credentials,
		usage:       usageSvc,
		eventSvc:    eventSvc,
		logger:      logger,
		validate:    validator.New(),
		config:      config.Clone(),
	}

	if err := eventSvc.Subscribe(interfaces.EventCaptureConfigChanged, s.handleConfigChanged); err != nil {
		return nil, fmt.Errorf("failed to subscribe to config changes: %w", err)
	}

	return s, nil
}

// SetTabResolver installs the page lookup used to attribute requests to tabs
func (s *Service) SetTabResolver(tabs interfaces.TabResolver) {
	s.mu.Lock()
	s.tabs = tabs
	s.mu.Unlock()
}

// Dispatcher exposes the extraction units
func (s *Service) Dispatcher() *extractors.Dispatcher {
	return s.dispatcher
}

func (s *Service) handleConfigChanged(ctx context.Context, event interfaces.Event) error {
	config, ok := event.Payload.(*models.CaptureConfig)
	if !ok || config == nil {
		return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
	}

	s.dispatcher.Reset(config)

	s.mu.Lock()
	s.config = config.Clone()
	s.mu.Unlock()

	s.logger.Debug().Bool("enabled", config.Enabled).Msg("Capture pipeline reloaded")
	return nil
}

func (s *Service) snapshot() (*models.CaptureConfig, interfaces.TabResolver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.tabs
}

// HandleRequest processes one request record. Storage failures drop the
// affected event and are logged; only an invalid record is returned as error.
func (s *Service) HandleRequest(ctx context.Context, record *models.RequestRecord) (*interfaces.CaptureResult, error) {
	if record == nil {
		return nil, fmt.Errorf("request record cannot be nil")
	}
	if err := s.validate.Struct(record); err != nil {
		return nil, fmt.Errorf("invalid request record: %w", err)
	}

	config, tabs := s.snapshot()
	result := &interfaces.CaptureResult{}

	parsed, err := url.Parse(record.URL)
	if err != nil || parsed.Hostname() == "" {
		s.logger.Debug().Str("url", common.MaskQuery(record.URL)).Msg("Skipping request with malformed URL")
		result.Filtered = true
		return result, nil
	}

	pageURL := s.resolvePage(ctx, tabs, record)
	if pageDomain, ok := usage.PageDomain(pageURL); ok {
		result.PageDomain = pageDomain
	}

	// Blocked or disabled requests leave nothing behind, usage examples included
	if !config.Enabled || !filter.ShouldCapture(parsed.Hostname(), config) {
		result.Filtered = true
		return result, nil
	}

	s.capture(ctx, record, result)

	if record.Kind.IsAPI() && !record.Supplemental && result.PageDomain != "" {
		s.track(ctx, record, result)
	}

	return result, nil
}

func (s *Service) resolvePage(ctx context.Context, tabs interfaces.TabResolver, record *models.RequestRecord) string {
	if tabs != nil && record.OriginID != "" {
		if pageURL, ok := tabs.PageURL(ctx, record.OriginID); ok && pageURL != "" {
			return pageURL
		}
	}
	return record.DocumentURL
}

func (s *Service) capture(ctx context.Context, record *models.RequestRecord, result *interfaces.CaptureResult) {
	extractions := s.dispatcher.ProcessRequest(record)
	if record.Supplemental {
		extractions = cookieSourced(extractions)
	}
	result.Extractions = len(extractions)

	for _, extraction := range extractions {
		key := identity.IdentityKey(extraction)
		update, err := s.credentials.Update(ctx, key, extraction)
		if err != nil {
			s.logger.Error().Err(err).
				Str("key", key).
				Str("extractor", extraction.ExtractorName).
				Msg("Failed to store credential")
			continue
		}

		if update.RotationDetected {
			result.Rotations++
		}

		event := &models.CaptureEvent{
			Extraction:       extraction,
			RotationDetected: update.RotationDetected,
			Previous:         update.Previous,
			Stored:           update.Stored,
		}
		result.Captured = append(result.Captured, event)

		if err := s.eventSvc.Publish(ctx, interfaces.Event{Type: interfaces.EventCredentialCaptured, Payload: event}); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to publish capture event")
		}
	}
}

func cookieSourced(extractions []*models.Extraction) []*models.Extraction {
	kept := extractions[:0]
	for _, extraction := range extractions {
		if extraction.FromCookie() {
			kept = append(kept, extraction)
		}
	}
	return kept
}

func (s *Service) track(ctx context.Context, record *models.RequestRecord, result *interfaces.CaptureResult) {
	req := interfaces.TrackRequest{
		URL:     record.URL,
		Method:  record.HTTPMethod(),
		Headers: record.Headers,
	}
	if err := s.usage.Track(ctx, result.PageDomain, req); err != nil {
		s.logger.Error().Err(err).Str("page_domain", result.PageDomain).Msg("Failed to track endpoint")
		return
	}
	result.Tracked = true

	event := &models.EndpointTrackedEvent{
		PageDomain: result.PageDomain,
		URL:        record.URL,
		Method:     req.Method,
	}
	if err := s.eventSvc.Publish(ctx, interfaces.Event{Type: interfaces.EventEndpointTracked, Payload: event}); err != nil {
		s.logger.Warn().Err(err).Str("page_domain", result.PageDomain).Msg("Failed to publish endpoint event")
	}
}
