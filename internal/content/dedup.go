package content

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// Deduplicator tracks content hashes seen within a rolling TTL window so the
// same page body fetched twice in quick succession isn't processed twice.
// Safe for concurrent use; one instance is shared across all sessions.
type Deduplicator struct {
	mu     sync.Mutex
	hashes map[string]time.Time
	ttl    time.Duration
}

// NewDeduplicator creates a Deduplicator with the given TTL.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		hashes: make(map[string]time.Time),
		ttl:    ttl,
	}
}

// IsDuplicate reports whether content has been seen before within the TTL
// window, and records it as seen either way (first call for a given
// content always returns false).
func (d *Deduplicator) IsDuplicate(content string) bool {
	hash := contentHash(content)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cleanExpiredLocked(now)

	if _, seen := d.hashes[hash]; seen {
		return true
	}
	d.hashes[hash] = now
	return false
}

func (d *Deduplicator) cleanExpiredLocked(now time.Time) {
	for hash, seenAt := range d.hashes {
		if now.Sub(seenAt) > d.ttl {
			delete(d.hashes, hash)
		}
	}
}

// Stats reports the deduplicator's current tracked-hash count and TTL.
func (d *Deduplicator) Stats() (total int, ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hashes), d.ttl
}

func contentHash(content string) string {
	sum := md5.Sum([]byte(normalizeForHash(content)))
	return hex.EncodeToString(sum[:])
}
