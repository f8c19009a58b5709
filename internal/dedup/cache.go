// Package dedup keeps bounded, insertion-ordered memories of seen post ids and content fingerprints.
package dedup

// Options bounds both memories. When a memory grows past its Max, the oldest
// entries are evicted until only Retain of the newest remain.
type Options struct {
	MaxIDs        int
	RetainIDs     int
	MaxContent    int
	RetainContent int
}

// DefaultOptions returns the bounds used by a discovery session.
func DefaultOptions() Options {
	return Options{
		MaxIDs:        2000,
		RetainIDs:     1000,
		MaxContent:    1000,
		RetainContent: 500,
	}
}

// Cache answers "have I seen this id" and "have I seen equivalent content".
// It is not safe for concurrent use; owners serialize access.
type Cache struct {
	ids     *bounded[struct{}]
	content *bounded[string]
}

// New builds an empty cache.
func New(opts Options) *Cache {
	return &Cache{
		ids:     newBounded[struct{}](opts.MaxIDs, opts.RetainIDs),
		content: newBounded[string](opts.MaxContent, opts.RetainContent),
	}
}

// Seen reports whether id was remembered and not yet evicted.
func (c *Cache) Seen(id string) bool {
	return c.ids.has(id)
}

// Remember records id and returns how many old ids were evicted to make room.
func (c *Cache) Remember(id string) int {
	if id == "" {
		return 0
	}
	return c.ids.put(id, struct{}{})
}

// SeenContent reports whether an equivalent fingerprint was remembered.
func (c *Cache) SeenContent(fingerprint string) bool {
	return fingerprint != "" && c.content.has(fingerprint)
}

// ContentOwner returns the id first remembered under fingerprint.
func (c *Cache) ContentOwner(fingerprint string) (string, bool) {
	id, ok := c.content.items[fingerprint]
	return id, ok
}

// RememberContent maps fingerprint to the id that carried it.
func (c *Cache) RememberContent(fingerprint, id string) int {
	if fingerprint == "" {
		return 0
	}
	return c.content.put(fingerprint, id)
}

// Clear forgets everything.
func (c *Cache) Clear() {
	c.ids.clear()
	c.content.clear()
}

// Len returns the number of remembered ids and fingerprints.
func (c *Cache) Len() (ids, fingerprints int) {
	return len(c.ids.items), len(c.content.items)
}

type bounded[V any] struct {
	items  map[string]V
	order  []string
	max    int
	retain int
}

func newBounded[V any](max, retain int) *bounded[V] {
	if max > 0 && (retain <= 0 || retain > max) {
		retain = max / 2
		if retain == 0 {
			retain = max
		}
	}
	return &bounded[V]{items: map[string]V{}, max: max, retain: retain}
}

func (b *bounded[V]) has(key string) bool {
	_, ok := b.items[key]
	return ok
}

// put keeps the original insertion position for keys that are already present.
func (b *bounded[V]) put(key string, v V) int {
	if _, ok := b.items[key]; ok {
		b.items[key] = v
		return 0
	}
	b.items[key] = v
	b.order = append(b.order, key)

	if b.max <= 0 || len(b.order) <= b.max {
		return 0
	}
	drop := len(b.order) - b.retain
	for _, old := range b.order[:drop] {
		delete(b.items, old)
	}
	b.order = append([]string(nil), b.order[drop:]...)
	return drop
}

func (b *bounded[V]) clear() {
	b.items = map[string]V{}
	b.order = nil
}
