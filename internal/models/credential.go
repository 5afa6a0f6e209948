package models

import "time"

// Persisted list caps
const (
	MaxExpiredTokens  = 50
	MaxHistoryEntries = 100
)

// CredentialStatus is the lifecycle state of a stored credential
type CredentialStatus string

const (
	CredentialStatusActive CredentialStatus = "active"
)

// HistoryEvent tags a capture log entry
type HistoryEvent string

const (
	HistoryEventCapture  HistoryEvent = "capture"
	HistoryEventRotation HistoryEvent = "rotation"
)

// StoredCredential is the active value for one credential identity key.
// RotationCount only ever grows while the entry exists.
type StoredCredential struct {
	Key           string            `json:"key"`
	Type          ExtractionType    `json:"type"`
	Value         string            `json:"value"`
	Source        Source            `json:"source"`
	ExtractorName string            `json:"extractorName,omitempty"`
	DisplayName   string            `json:"displayName,omitempty"`
	HeaderName    string            `json:"headerName,omitempty"`
	TokenType     TokenType         `json:"tokenType,omitempty"`
	CookieName    string            `json:"cookieName,omitempty"`
	ParamName     string            `json:"paramName,omitempty"`
	RuleName      string            `json:"ruleName,omitempty"`
	ExtractFrom   ExtractFrom       `json:"extractFrom,omitempty"`
	AllMatches    map[string]string `json:"allMatches,omitempty"`

	CapturedAt         time.Time        `json:"capturedAt"`
	LastSeenAt         time.Time        `json:"lastSeenAt"`
	Status             CredentialStatus `json:"status"`
	RotationCount      int              `json:"rotationCount"`
	LastRotatedAt      *time.Time       `json:"lastRotatedAt,omitempty"`
	PreviousValue      string           `json:"previousValue,omitempty"`
	PreviousCapturedAt *time.Time       `json:"previousCapturedAt,omitempty"`
}

// NewStoredCredential builds a fresh active entry from an extraction
func NewStoredCredential(key string, e *Extraction, now time.Time) *StoredCredential {
	c := &StoredCredential{
		Key:        key,
		CapturedAt: now,
		LastSeenAt: now,
		Status:     CredentialStatusActive,
	}
	c.applyExtraction(e)
	return c
}

// applyExtraction copies the extraction payload onto the entry
func (c *StoredCredential) applyExtraction(e *Extraction) {
	c.Type = e.Type
	c.Value = e.Value
	c.Source = e.Source
	c.ExtractorName = e.ExtractorName
	c.DisplayName = e.DisplayName
	c.HeaderName = e.HeaderName
	c.TokenType = e.TokenType
	c.CookieName = e.CookieName
	c.ParamName = e.ParamName
	c.RuleName = e.RuleName
	c.ExtractFrom = e.ExtractFrom
	c.AllMatches = e.AllMatches
}

// Rotate returns the entry that replaces c after its value changed to e.Value
func (c *StoredCredential) Rotate(e *Extraction, now time.Time) *StoredCredential {
	previousCapturedAt := c.CapturedAt
	rotatedAt := now

	next := &StoredCredential{
		Key:                c.Key,
		CapturedAt:         now,
		LastSeenAt:         now,
		Status:             CredentialStatusActive,
		RotationCount:      c.RotationCount + 1,
		LastRotatedAt:      &rotatedAt,
		PreviousValue:      c.Value,
		PreviousCapturedAt: &previousCapturedAt,
	}
	next.applyExtraction(e)
	return next
}

// ExpiredToken is a snapshot of a value taken at the moment it was rotated out
type ExpiredToken struct {
	Key           string         `json:"key"`
	Type          ExtractionType `json:"type"`
	Value         string         `json:"value"`
	Source        Source         `json:"source"`
	CapturedAt    time.Time      `json:"capturedAt"`
	ExpiredAt     time.Time      `json:"expiredAt"`
	RotationCount int            `json:"rotationCount"`
}

// HistoryEntry records a single observation of a credential
type HistoryEntry struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Type      ExtractionType `json:"type"`
	Value     string         `json:"value"`
	Source    Source         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Event     HistoryEvent   `json:"event"`
}

// CaptureEvent is published after every successful identity update
type CaptureEvent struct {
	Extraction       *Extraction       `json:"extraction"`
	RotationDetected bool              `json:"rotationDetected"`
	Previous         *ExpiredToken     `json:"previous,omitempty"`
	Stored           *StoredCredential `json:"stored"`
}
