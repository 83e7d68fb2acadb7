package tlv

import "bytes"

// Cache remembers, per tag, the last value this process emitted, so a
// sender can encode only what changed (spec.md §4.6 "Delta compression").
type Cache struct {
	last map[Tag][]byte
}

// NewCache returns an empty delta cache.
func NewCache() *Cache {
	return &Cache{last: make(map[Tag][]byte)}
}

// Filter returns the subset of items whose value differs from what was
// last emitted for that tag (or that have never been emitted), and
// records all of items as the new baseline. Use this for incremental
// status packets.
func (c *Cache) Filter(items []Item) []Item {
	var out []Item
	for _, it := range items {
		prev, ok := c.last[it.Tag]
		if !ok || !bytes.Equal(prev, it.Value) {
			out = append(out, it)
		}
		c.record(it)
	}
	return out
}

// Record updates the cache's baseline for items without filtering
// anything out; used when sending a "full" packet so the next incremental
// packet diffs against exactly what was just sent.
func (c *Cache) Record(items []Item) {
	for _, it := range items {
		c.record(it)
	}
}

func (c *Cache) record(it Item) {
	v := make([]byte, len(it.Value))
	copy(v, it.Value)
	c.last[it.Tag] = v
}

// Reset discards all cached values, forcing the next Filter call to treat
// every tag as changed.
func (c *Cache) Reset() {
	c.last = make(map[Tag][]byte)
}
