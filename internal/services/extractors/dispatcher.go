package extractors

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/models"
)

// Dispatcher runs every active unit against a request. Built-ins run first in
// a fixed order (auth, cookie, query) followed by custom rules in the order
// they were registered. It is safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	enabled  bool
	builtins []Extractor
	custom   []*CustomExtractor
	logger   arbor.ILogger
	now      func() time.Time
}

// NewDispatcher builds the unit list from config
func NewDispatcher(config *models.CaptureConfig, logger arbor.ILogger) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		now:    time.Now,
	}
	d.Reset(config)
	return d
}

// Reset replaces every unit with ones built from config. Invalid custom rules
// are logged and left out.
func (d *Dispatcher) Reset(config *models.CaptureConfig) {
	if config == nil {
		config = models.NewDefaultCaptureConfig()
	}

	builtins := []Extractor{
		NewAuthTokenExtractor(config.AuthHeaders, config.AuthURLPatterns),
		NewCookieExtractor(config.CookiePatterns),
		NewQueryParamExtractor(config.QueryParams),
	}

	custom := make([]*CustomExtractor, 0, len(config.CustomRules))
	for _, rule := range config.CustomRules {
		unit, err := NewCustomExtractor(rule)
		if err != nil {
			d.logger.Warn().Err(err).Str("rule", rule.Name).Msg("Skipping invalid custom rule")
			continue
		}
		custom = append(custom, unit)
	}

	d.mu.Lock()
	d.enabled = config.Enabled
	d.builtins = builtins
	d.custom = custom
	d.mu.Unlock()

	d.logger.Debug().
		Bool("enabled", config.Enabled).
		Int("custom_rules", len(custom)).
		Msg("Extraction dispatcher reset")
}

// AddCustomRule registers a rule, replacing an existing rule with the same name in place
func (d *Dispatcher) AddCustomRule(rule models.CustomRule) error {
	unit, err := NewCustomExtractor(rule)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.custom {
		if strings.EqualFold(existing.rule.Name, rule.Name) {
			d.custom[i] = unit
			return nil
		}
	}
	d.custom = append(d.custom, unit)
	return nil
}

// RemoveCustomRule unregisters a rule by name and reports whether it existed
func (d *Dispatcher) RemoveCustomRule(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.custom {
		if strings.EqualFold(existing.rule.Name, name) {
			d.custom = append(d.custom[:i:i], d.custom[i+1:]...)
			return true
		}
	}
	return false
}

// SetEnabled toggles extraction globally
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
}

// Enabled reports whether extraction is on
func (d *Dispatcher) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Extractors returns the active units in processing order
func (d *Dispatcher) Extractors() []Extractor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	units := make([]Extractor, 0, len(d.builtins)+len(d.custom))
	units = append(units, d.builtins...)
	for _, c := range d.custom {
		units = append(units, c)
	}
	return units
}

// ProcessRequest runs the request through every unit and returns the
// extractions in unit order. Malformed URLs yield nothing.
func (d *Dispatcher) ProcessRequest(record *models.RequestRecord) []*models.Extraction {
	if record == nil || !d.Enabled() {
		return nil
	}

	req, err := NewRequest(record)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Skipping request with malformed URL")
		return nil
	}

	now := d.now()
	var results []*models.Extraction
	for _, unit := range d.Extractors() {
		if extraction := d.run(unit, req, now); extraction != nil {
			results = append(results, extraction)
		}
	}
	return results
}

// run isolates a single unit: errors and panics become "no result"
func (d *Dispatcher) run(unit Extractor, req *Request, now time.Time) (extraction *models.Extraction) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().
				Str("extractor", unit.Name()).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("domain", req.Domain()).
				Msg("Extractor panicked")
			extraction = nil
		}
	}()

	extraction, err := process(unit, req, now)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("extractor", unit.Name()).
			Str("domain", req.Domain()).
			Msg("Extractor failed")
		return nil
	}
	return extraction
}
