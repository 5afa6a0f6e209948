package models

import "strings"

// RequestKind tags the resource type of an intercepted request
type RequestKind string

const (
	RequestKindXHR      RequestKind = "xhr"
	RequestKindFetch    RequestKind = "fetch"
	RequestKindDocument RequestKind = "document"
	RequestKindScript   RequestKind = "script"
	RequestKindOther    RequestKind = "other"
)

// IsAPI reports whether the request is an XHR/fetch style API call
func (k RequestKind) IsAPI() bool {
	return k == RequestKindXHR || k == RequestKindFetch
}

// Header is a single request header as delivered by the browser
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RequestRecord describes an outgoing request before it is sent.
// The core only reads it.
type RequestRecord struct {
	URL      string      `json:"url" validate:"required"`
	Method   string      `json:"method"`
	Headers  []Header    `json:"headers"`
	OriginID string      `json:"originId"`
	Kind     RequestKind `json:"kind"`

	// DocumentURL is the page the request was issued from, when the feed knows it
	DocumentURL string `json:"documentUrl,omitempty"`

	// Supplemental records carry headers the browser only reported after the
	// initial request event (e.g. Cookie). They are not counted as new API calls.
	Supplemental bool `json:"supplemental,omitempty"`
}

// Header returns the first header value whose name matches (case-insensitive)
func (r *RequestRecord) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// HTTPMethod returns the upper-cased method, defaulting to GET
func (r *RequestRecord) HTTPMethod() string {
	if r.Method == "" {
		return "GET"
	}
	return strings.ToUpper(r.Method)
}
