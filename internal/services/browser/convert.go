package browser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/ternarybob/tokenscope/internal/models"
)

// requestKind maps a DevTools resource type onto a request kind
func requestKind(resourceType network.ResourceType) models.RequestKind {
	switch resourceType {
	case network.ResourceTypeXHR:
		return models.RequestKindXHR
	case network.ResourceTypeFetch:
		return models.RequestKindFetch
	case network.ResourceTypeDocument:
		return models.RequestKindDocument
	case network.ResourceTypeScript:
		return models.RequestKindScript
	default:
		return models.RequestKindOther
	}
}

// headerList flattens DevTools headers, sorted by name so records are stable
func headerList(headers network.Headers) []models.Header {
	list := make([]models.Header, 0, len(headers))
	for name, value := range headers {
		var text string
		switch v := value.(type) {
		case string:
			text = v
		case nil:
			continue
		default:
			text = fmt.Sprint(v)
		}
		list = append(list, models.Header{Name: name, Value: text})
	}
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
	return list
}

// headerValue returns a header by case-insensitive name
func headerValue(headers network.Headers, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			if text, ok := value.(string); ok {
				return text
			}
		}
	}
	return ""
}

// recordFromEvent converts a requestWillBeSent event for the tab originID
func recordFromEvent(ev *network.EventRequestWillBeSent, originID string) *models.RequestRecord {
	if ev == nil || ev.Request == nil {
		return nil
	}
	return &models.RequestRecord{
		URL:         ev.Request.URL,
		Method:      ev.Request.Method,
		Headers:     headerList(ev.Request.Headers),
		OriginID:    originID,
		Kind:        requestKind(ev.Type),
		DocumentURL: ev.DocumentURL,
	}
}

// supplementalRecord carries a cookie header the browser reported after the
// request event. Only the Cookie header is included so auth headers already
// seen on the original record are not counted twice.
func supplementalRecord(original *models.RequestRecord, cookie string) *models.RequestRecord {
	return &models.RequestRecord{
		URL:          original.URL,
		Method:       original.Method,
		Headers:      []models.Header{{Name: "Cookie", Value: cookie}},
		OriginID:     original.OriginID,
		Kind:         original.Kind,
		DocumentURL:  original.DocumentURL,
		Supplemental: true,
	}
}

func hasCookie(record *models.RequestRecord) bool {
	_, ok := record.Header("Cookie")
	return ok
}
