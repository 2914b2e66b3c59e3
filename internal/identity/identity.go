package identity

import (
	"os"
	"path/filepath"
	"sync"
)

// Signature identifies the exact content a uid was obtained for. Two
// signatures match only when every field is equal.
type Signature struct {
	Path           string
	Size           int64
	ModTimeNanos   int64
	IdempotencyKey string
}

// FileSignature snapshots the absolute path, size and modification time of
// path.
func FileSignature(path string) (Signature, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Signature{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Path: abs, Size: info.Size(), ModTimeNanos: info.ModTime().UnixNano()}, nil
}

// KeySignature builds a signature from a caller-supplied idempotency key.
func KeySignature(key string) Signature {
	return Signature{IdempotencyKey: key}
}

type entry struct {
	sig Signature
	uid string
}

// Cache maps submission keys to previously obtained uids. Entries never
// expire; a signature mismatch is a miss.
type Cache struct {
	items map[string]entry
	mu    sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]entry)}
}

// Lookup returns the cached uid for key when sig equals the stored snapshot.
func (c *Cache) Lookup(key string, sig Signature) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || e.sig != sig || e.uid == "" {
		return "", false
	}
	return e.uid, true
}

// Store records uid for key. The last write wins.
func (c *Cache) Store(key string, sig Signature, uid string) {
	c.mu.Lock()
	c.items[key] = entry{sig: sig, uid: uid}
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SubmissionSet remembers which submissions were already sent.
type SubmissionSet struct {
	seen map[string]struct{}
	mu   sync.RWMutex
}

func NewSubmissionSet() *SubmissionSet {
	return &SubmissionSet{seen: make(map[string]struct{})}
}

// Add records key and reports whether it was new.
func (s *SubmissionSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Has reports whether key was recorded.
func (s *SubmissionSet) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[key]
	return ok
}
