package enhance

import (
	"sync"
	"time"

	"tbcv/internal/types"
)

// previewStore holds previews in memory until they expire. Previews never
// touch the store or the filesystem; a restart simply forgets them.
type previewStore struct {
	mu       sync.Mutex
	previews map[string]*types.EnhancementPreview
	ttl      time.Duration
}

func newPreviewStore(ttl time.Duration) *previewStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &previewStore{
		previews: make(map[string]*types.EnhancementPreview),
		ttl:      ttl,
	}
}

func (p *previewStore) put(preview *types.EnhancementPreview) {
	now := time.Now().UTC()
	preview.CreatedAt = now
	preview.ExpiresAt = now.Add(p.ttl)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews[preview.PreviewID] = preview
	p.sweepLocked(now)
}

// get returns a live preview, or nil when unknown or expired.
func (p *previewStore) get(id string) *types.EnhancementPreview {
	p.mu.Lock()
	defer p.mu.Unlock()
	preview, ok := p.previews[id]
	if !ok {
		return nil
	}
	if time.Now().UTC().After(preview.ExpiresAt) {
		delete(p.previews, id)
		return nil
	}
	return preview
}

func (p *previewStore) drop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.previews, id)
}

func (p *previewStore) sweepLocked(now time.Time) {
	for id, preview := range p.previews {
		if now.After(preview.ExpiresAt) {
			delete(p.previews, id)
		}
	}
}

func (p *previewStore) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.previews)
}
