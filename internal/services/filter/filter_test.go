package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/tokenscope/internal/models"
)

func TestShouldCapture_BlockList(t *testing.T) {
	config := &models.CaptureConfig{
		BlockedDomains: []string{"ads.example.com", "*.tracker.com"},
	}

	tests := []struct {
		domain string
		want   bool
	}{
		{"ads.example.com", false},
		{"sub.tracker.com", false},
		{"deep.sub.tracker.com", false},
		{"tracker.com", false},
		{"ADS.EXAMPLE.COM", false},
		{"example.com", true},
		{"api.myapp.com", true},
		{"nottracker.com", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCapture(tt.domain, config))
		})
	}
}

func TestShouldCapture_AllowList(t *testing.T) {
	config := &models.CaptureConfig{
		AllowedDomains: []string{"api.myapp.com", "*.service.com"},
	}

	assert.False(t, ShouldCapture("other.com", config))
	assert.True(t, ShouldCapture("api.myapp.com", config))
	assert.True(t, ShouldCapture("x.service.com", config))
	assert.False(t, ShouldCapture("www.myapp.com", config))
}

func TestShouldCapture_BlockWinsOverAllow(t *testing.T) {
	config := &models.CaptureConfig{
		AllowedDomains: []string{"*.service.com"},
		BlockedDomains: []string{"telemetry.service.com"},
	}

	assert.False(t, ShouldCapture("telemetry.service.com", config))
	assert.True(t, ShouldCapture("api.service.com", config))
}

func TestShouldCapture_NilConfig(t *testing.T) {
	assert.True(t, ShouldCapture("example.com", nil))
	assert.False(t, ShouldCapture("", nil))
}

func TestMatchDomain(t *testing.T) {
	assert.True(t, MatchDomain("example.com", "example.com"))
	assert.False(t, MatchDomain("example.com", "api.example.com"))
	assert.True(t, MatchDomain("*.example.com", "api.example.com"))
	assert.True(t, MatchDomain("*.example.com", "example.com"))
	assert.False(t, MatchDomain("*.example.com", "badexample.com"))
	assert.False(t, MatchDomain("", "example.com"))
}
