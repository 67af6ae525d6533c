package resolver

import (
	"strings"
	"sync"
)

// candidates holds the ordered model list and the sticky preferred model.
// Promotion is process-wide: a model that answered for one principal is
// tried first for every principal.
type candidates struct {
	mu         sync.RWMutex
	preferred  string
	configured string
	fallbacks  []string
	discovered []string
	exclude    []string
	limit      int
}

func newCandidates(preferred string, fallbacks, exclude []string, limit int) *candidates {
	preferred = strings.TrimSpace(preferred)
	return &candidates{
		preferred:  preferred,
		configured: preferred,
		fallbacks:  fallbacks,
		exclude:    exclude,
		limit:      limit,
	}
}

// list returns the candidates to try, preferred first, de-duplicated in
// first-seen order and capped at limit when limit > 0.
func (c *candidates) list() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	add := func(ids ...string) {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(c.preferred, c.configured)
	add(c.fallbacks...)
	add(c.discovered...)

	if c.limit > 0 && len(out) > c.limit {
		out = out[:c.limit]
	}
	return out
}

func (c *candidates) current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preferred
}

func (c *candidates) promote(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preferred = model
}

// setDiscovered replaces the discovered list, dropping excluded models.
func (c *candidates) setDiscovered(ids []string) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if !c.excluded(id) {
			kept = append(kept, id)
		}
	}

	c.mu.Lock()
	c.discovered = kept
	c.mu.Unlock()
	return kept
}

func (c *candidates) discoveredModels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.discovered...)
}

func (c *candidates) excluded(id string) bool {
	lid := strings.ToLower(id)
	for _, pattern := range c.exclude {
		if pattern != "" && strings.Contains(lid, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
