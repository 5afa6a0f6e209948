package browser

import (
	"context"
	"sync"
)

// TabRegistry remembers the page URL loaded in each browser tab
type TabRegistry struct {
	mu    sync.RWMutex
	pages map[string]string
}

// NewTabRegistry creates an empty registry
func NewTabRegistry() *TabRegistry {
	return &TabRegistry{pages: make(map[string]string)}
}

// SetPage records the main-frame URL of a tab. Blank pages are ignored.
func (r *TabRegistry) SetPage(originID, pageURL string) {
	if originID == "" || pageURL == "" || pageURL == "about:blank" {
		return
	}
	r.mu.Lock()
	r.pages[originID] = pageURL
	r.mu.Unlock()
}

// Remove forgets a closed tab
func (r *TabRegistry) Remove(originID string) {
	r.mu.Lock()
	delete(r.pages, originID)
	r.mu.Unlock()
}

// PageURL implements interfaces.TabResolver
func (r *TabRegistry) PageURL(ctx context.Context, originID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pageURL, ok := r.pages[originID]
	return pageURL, ok
}

// Len returns the number of known tabs
func (r *TabRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}
