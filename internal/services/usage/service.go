package usage

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// Service aggregates API calls per page domain with bounded, LRU-evicted buckets
type Service struct {
	storage interfaces.UsageStorage
	locks   *common.KeyedMutex
	logger  arbor.ILogger
	now     func() time.Time
}

// NewService creates a new usage service
func NewService(storage interfaces.UsageStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		locks:   common.NewKeyedMutex(),
		logger:  logger,
		now:     time.Now,
	}
}

// EndpointKey identifies an endpoint inside a page bucket
func EndpointKey(apiDomain, normalizedPath, method string) string {
	return apiDomain + "::" + normalizedPath + "::" + method
}

// Track records one API call made from a page on pageDomain.
// Unparseable URLs are skipped without error.
func (s *Service) Track(ctx context.Context, pageDomain string, req interfaces.TrackRequest) error {
	if pageDomain == "" {
		return nil
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Hostname() == "" {
		s.logger.Debug().Str("page_domain", pageDomain).Msg("Skipping usage tracking for malformed URL")
		return nil
	}

	apiDomain := strings.ToLower(parsed.Hostname())
	path := common.NormalizePath(parsed.Path)
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}
	key := EndpointKey(apiDomain, path, method)
	hasAuth, authType := detectAuth(req.Headers)
	query := parsed.Query()

	unlock := s.locks.Lock(pageDomain)
	defer unlock()

	return s.storage.UpdateEndpointUsage(ctx, func(usage map[string]*models.PageUsage) error {
		now := s.now()

		bucket, exists := usage[pageDomain]
		if !exists {
			bucket = models.NewPageUsage(pageDomain, now)
			usage[pageDomain] = bucket
		}
		ensureBucketMaps(bucket)
		bucket.LastVisited = now
		bucket.TotalRequests++

		if entry, ok := bucket.Endpoints[key]; ok {
			entry.Count++
			entry.LastSeen = now
			mergeQuery(entry, query)
			if !entry.HasAuth && hasAuth {
				entry.HasAuth = true
				entry.AuthType = authType
			}
			entry.ExampleURLs = appendCapped(entry.ExampleURLs, req.URL, models.MaxExampleURLs)
		} else {
			if len(bucket.Endpoints) >= models.MaxEndpointsPerDomain {
				evictOldestEndpoint(bucket)
			}
			entry = &models.EndpointEntry{
				APIDomain:     apiDomain,
				Path:          path,
				Method:        method,
				Count:         1,
				FirstSeen:     now,
				LastSeen:      now,
				QueryParams:   []string{},
				ParamExamples: make(map[string][]string),
				HasAuth:       hasAuth,
				AuthType:      authType,
				ExampleURLs:   []string{req.URL},
			}
			mergeQuery(entry, query)
			bucket.Endpoints[key] = entry
		}

		bucket.Stats.UniqueEndpoints = len(bucket.Endpoints)
		bucket.Stats.APIDomains[apiDomain]++
		bucket.Stats.Methods[method]++

		if !exists && len(usage) > models.MaxTrackedDomains {
			evictOldestBucket(usage, pageDomain)
		}
		return nil
	})
}

func ensureBucketMaps(bucket *models.PageUsage) {
	if bucket.Endpoints == nil {
		bucket.Endpoints = make(map[string]*models.EndpointEntry)
	}
	if bucket.Stats.APIDomains == nil {
		bucket.Stats.APIDomains = make(map[string]int)
	}
	if bucket.Stats.Methods == nil {
		bucket.Stats.Methods = make(map[string]int)
	}
}

// mergeQuery unions parameter names and adds example values up to the cap
func mergeQuery(entry *models.EndpointEntry, query url.Values) {
	if entry.ParamExamples == nil {
		entry.ParamExamples = make(map[string][]string)
	}

	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry.QueryParams = appendCapped(entry.QueryParams, name, -1)
		for _, value := range query[name] {
			if value == "" {
				continue
			}
			entry.ParamExamples[name] = appendCapped(entry.ParamExamples[name], value, models.MaxParamExamples)
		}
	}
}

// appendCapped appends value unless present or the list is full. limit < 0 means no cap.
func appendCapped(list []string, value string, limit int) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	if limit >= 0 && len(list) >= limit {
		return list
	}
	return append(list, value)
}

func evictOldestEndpoint(bucket *models.PageUsage) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range bucket.Endpoints {
		if oldestKey == "" || entry.LastSeen.Before(oldest) || (entry.LastSeen.Equal(oldest) && key < oldestKey) {
			oldestKey = key
			oldest = entry.LastSeen
		}
	}
	if oldestKey != "" {
		delete(bucket.Endpoints, oldestKey)
	}
}

func evictOldestBucket(usage map[string]*models.PageUsage, keep string) {
	var oldestDomain string
	var oldest time.Time
	for domain, bucket := range usage {
		if domain == keep {
			continue
		}
		if oldestDomain == "" || bucket.LastVisited.Before(oldest) || (bucket.LastVisited.Equal(oldest) && domain < oldestDomain) {
			oldestDomain = domain
			oldest = bucket.LastVisited
		}
	}
	if oldestDomain != "" {
		delete(usage, oldestDomain)
	}
}

// GetUsage returns the bucket for pageDomain
func (s *Service) GetUsage(ctx context.Context, pageDomain string) (*models.PageUsage, error) {
	usage, err := s.storage.GetEndpointUsage(ctx)
	if err != nil {
		return nil, err
	}
	bucket, ok := usage[pageDomain]
	if !ok {
		return nil, interfaces.ErrDomainNotTracked
	}
	ensureBucketMaps(bucket)
	return bucket, nil
}

// TrackedDomains lists every bucket, most recently visited first
func (s *Service) TrackedDomains(ctx context.Context) ([]*models.TrackedDomain, error) {
	usage, err := s.storage.GetEndpointUsage(ctx)
	if err != nil {
		return nil, err
	}

	domains := make([]*models.TrackedDomain, 0, len(usage))
	for domain, bucket := range usage {
		domains = append(domains, &models.TrackedDomain{
			Domain:        domain,
			LastVisited:   bucket.LastVisited,
			TotalRequests: bucket.TotalRequests,
			EndpointCount: len(bucket.Endpoints),
		})
	}
	sort.Slice(domains, func(i, j int) bool {
		if !domains[i].LastVisited.Equal(domains[j].LastVisited) {
			return domains[i].LastVisited.After(domains[j].LastVisited)
		}
		return domains[i].Domain < domains[j].Domain
	})
	return domains, nil
}

// Clear removes one page bucket. Clearing an untracked domain is a no-op.
func (s *Service) Clear(ctx context.Context, pageDomain string) error {
	unlock := s.locks.Lock(pageDomain)
	defer unlock()

	err := s.storage.UpdateEndpointUsage(ctx, func(usage map[string]*models.PageUsage) error {
		delete(usage, pageDomain)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("page_domain", pageDomain).Msg("Endpoint usage cleared")
	return nil
}

// ClearAll removes every page bucket
func (s *Service) ClearAll(ctx context.Context) error {
	err := s.storage.UpdateEndpointUsage(ctx, func(usage map[string]*models.PageUsage) error {
		for domain := range usage {
			delete(usage, domain)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Msg("All endpoint usage cleared")
	return nil
}
