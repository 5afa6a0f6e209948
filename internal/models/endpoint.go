package models

import "time"

// Usage aggregation caps
const (
	MaxEndpointsPerDomain = 200
	MaxTrackedDomains     = 50
	MaxParamExamples      = 5
	MaxExampleURLs        = 3
)

// AuthType values inferred from request headers
const (
	AuthTypeBearer = "bearer"
	AuthTypeBasic  = "basic"
	AuthTypeToken  = "token"
)

// EndpointEntry aggregates calls to one (api domain, normalized path, method)
type EndpointEntry struct {
	APIDomain     string              `json:"apiDomain"`
	Path          string              `json:"path"`
	Method        string              `json:"method"`
	Count         int                 `json:"count"`
	FirstSeen     time.Time           `json:"firstSeen"`
	LastSeen      time.Time           `json:"lastSeen"`
	QueryParams   []string            `json:"queryParams"`
	ParamExamples map[string][]string `json:"paramExamples"`
	HasAuth       bool                `json:"hasAuth"`
	AuthType      string              `json:"authType,omitempty"`
	ExampleURLs   []string            `json:"exampleUrls"`
}

// UsageStats are running aggregates for a page bucket
type UsageStats struct {
	UniqueEndpoints int            `json:"uniqueEndpoints"`
	APIDomains      map[string]int `json:"apiDomains"`
	Methods         map[string]int `json:"methods"`
}

// PageUsage is the usage bucket for one root page domain
type PageUsage struct {
	Domain        string                    `json:"domain"`
	LastVisited   time.Time                 `json:"lastVisited"`
	TotalRequests int                       `json:"totalRequests"`
	Endpoints     map[string]*EndpointEntry `json:"endpoints"`
	Stats         UsageStats                `json:"stats"`
}

// NewPageUsage returns an empty bucket for a page domain
func NewPageUsage(domain string, now time.Time) *PageUsage {
	return &PageUsage{
		Domain:      domain,
		LastVisited: now,
		Endpoints:   make(map[string]*EndpointEntry),
		Stats: UsageStats{
			APIDomains: make(map[string]int),
			Methods:    make(map[string]int),
		},
	}
}

// TrackedDomain summarizes a bucket for listing
type TrackedDomain struct {
	Domain        string    `json:"domain"`
	LastVisited   time.Time `json:"lastVisited"`
	TotalRequests int       `json:"totalRequests"`
	EndpointCount int       `json:"endpointCount"`
}

// EndpointTrackedEvent is published after every usage update
type EndpointTrackedEvent struct {
	PageDomain string `json:"pageDomain"`
	URL        string `json:"url"`
	Method     string `json:"method"`
}
