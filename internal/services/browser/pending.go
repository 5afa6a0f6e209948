package browser

import (
	"sync"

	"github.com/ternarybob/tokenscope/internal/models"
)

const defaultPendingRequests = 1000

// pendingEntry holds whichever half of a request arrived first: the request
// itself or the cookie header reported by the extra-info event
type pendingEntry struct {
	record *models.RequestRecord
	cookie string
	seq    uint64
}

type pendingKey struct {
	id  string
	seq uint64
}

// pendingRequests joins request events with their extra-info events.
// The oldest entries are dropped once limit is reached.
type pendingRequests struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*pendingEntry
	order   []pendingKey
	seq     uint64
}

func newPendingRequests(limit int) *pendingRequests {
	if limit <= 0 {
		limit = defaultPendingRequests
	}
	return &pendingRequests{
		limit:   limit,
		entries: make(map[string]*pendingEntry),
	}
}

// addRequest stores record under id and returns a cookie that arrived
// earlier for the same id, consuming the entry
func (p *pendingRequests) addRequest(id string, record *models.RequestRecord) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.entries[id]; ok && entry.record == nil {
		delete(p.entries, id)
		return entry.cookie, true
	}
	p.put(id, &pendingEntry{record: record})
	return "", false
}

// addCookie stores cookie under id and returns a request that arrived
// earlier for the same id, consuming the entry
func (p *pendingRequests) addCookie(id, cookie string) (*models.RequestRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.entries[id]; ok && entry.record != nil {
		delete(p.entries, id)
		return entry.record, true
	}
	p.put(id, &pendingEntry{cookie: cookie})
	return nil, false
}

// put must be called with mu held
func (p *pendingRequests) put(id string, entry *pendingEntry) {
	p.seq++
	entry.seq = p.seq
	p.entries[id] = entry
	p.order = append(p.order, pendingKey{id: id, seq: entry.seq})

	for len(p.entries) > p.limit && len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		if current, ok := p.entries[oldest.id]; ok && current.seq == oldest.seq {
			delete(p.entries, oldest.id)
		}
	}

	// drop keys whose entries were consumed or replaced
	if len(p.order) > 2*p.limit {
		order := make([]pendingKey, 0, len(p.entries))
		for _, key := range p.order {
			if current, ok := p.entries[key.id]; ok && current.seq == key.seq {
				order = append(order, key)
			}
		}
		p.order = order
	}
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
