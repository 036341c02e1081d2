package cover

import (
	"context"
	"sync"

	"github.com/pagebound/jacket/util/log"
)

// Store is the thread-safe in-memory index of cover resolution state:
// provisional URLs handed out before convergence, final descriptors
// written by it, and the bad URL/ISBN sets that stop repeat failures.
// Each index is capacity-bounded; the process never grows without limit.
type Store struct {
	mu sync.RWMutex

	provisional    map[string]string     // fingerprint -> remote URL
	final          map[string]Descriptor // fingerprint -> settled descriptor
	badURLs        map[string]struct{}
	badOpenLibrary map[string]struct{}
	badLongitood   map[string]struct{}

	updateCh chan struct{}
}

// NewStore creates empty indexes.
func NewStore() *Store {
	return &Store{
		provisional:    make(map[string]string),
		final:          make(map[string]Descriptor),
		badURLs:        make(map[string]struct{}),
		badOpenLibrary: make(map[string]struct{}),
		badLongitood:   make(map[string]struct{}),
		updateCh:       make(chan struct{}),
	}
}

// SetProvisional remembers the URL handed to a caller before convergence
// settles. No-op when a final entry already exists, when the URL is empty
// or the placeholder, or when the fingerprint is empty.
func (s *Store) SetProvisional(fingerprint, url string) {
	if fingerprint == "" || url == "" || url == PlaceholderPath {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.final[fingerprint]; ok {
		return
	}
	if _, ok := s.provisional[fingerprint]; !ok && len(s.provisional) >= indexCapacity {
		// Coarse reset; provisional entries are cheap to rebuild.
		log.Warnf("store: provisional index full, dropping %d entries", len(s.provisional))
		s.provisional = make(map[string]string)
	}
	s.provisional[fingerprint] = url
}

// Provisional returns the provisional URL for a fingerprint, if any.
func (s *Store) Provisional(fingerprint string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.provisional[fingerprint]
	return url, ok
}

// EvictProvisional drops the provisional entry for a fingerprint.
func (s *Store) EvictProvisional(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.provisional, fingerprint)
}

// SetFinal writes the settled descriptor for a fingerprint and returns
// the descriptor that is effective afterwards. Finals only improve: a
// write that would replace a non-placeholder with a worse or equal
// descriptor, or with the same (location, provider), is suppressed and
// the surviving descriptor is returned. The provisional entry is cleared
// either way.
func (s *Store) SetFinal(fingerprint string, d Descriptor) Descriptor {
	if fingerprint == "" {
		return d
	}
	if !d.IsPlaceholder() && !d.Valid() {
		log.Warnf("store: refusing unmeasured final %q for %s, downgrading to placeholder", d.Location, fingerprint)
		d = PlaceholderDescriptor()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.provisional, fingerprint)

	existing, ok := s.final[fingerprint]
	if ok && !existing.IsPlaceholder() {
		if d.Location == existing.Location && d.Provider == existing.Provider {
			return existing
		}
		if !d.betterThan(existing) {
			return existing
		}
	}

	if !ok && len(s.final) >= indexCapacity {
		log.Warnf("store: final index full, dropping %d entries", len(s.final))
		s.final = make(map[string]Descriptor)
	}
	s.final[fingerprint] = d
	s.notifyUpdateLocked()
	return d
}

// Final returns the settled descriptor for a fingerprint, if any.
func (s *Store) Final(fingerprint string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.final[fingerprint]
	return d, ok
}

// MarkBadURL records a URL that failed, permanently for this process.
func (s *Store) MarkBadURL(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.badURLs[url]; !ok && len(s.badURLs) >= indexCapacity {
		// The set is monotonic, so saturate rather than evict.
		return
	}
	s.badURLs[url] = struct{}{}
}

// IsBadURL reports whether the URL has already failed this process.
func (s *Store) IsBadURL(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.badURLs[url]
	return ok
}

// MarkBadOpenLibrary records an ISBN Open Library has no cover for.
func (s *Store) MarkBadOpenLibrary(isbn string) {
	s.markBadISBN(s.badOpenLibrary, isbn)
}

// IsBadOpenLibrary reports whether Open Library is known to lack the ISBN.
func (s *Store) IsBadOpenLibrary(isbn string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.badOpenLibrary[isbn]
	return ok
}

// MarkBadLongitood records an ISBN Longitood has no cover for.
func (s *Store) MarkBadLongitood(isbn string) {
	s.markBadISBN(s.badLongitood, isbn)
}

// IsBadLongitood reports whether Longitood is known to lack the ISBN.
func (s *Store) IsBadLongitood(isbn string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.badLongitood[isbn]
	return ok
}

func (s *Store) markBadISBN(set map[string]struct{}, isbn string) {
	if isbn == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := set[isbn]; !ok && len(set) >= indexCapacity {
		return
	}
	set[isbn] = struct{}{}
}

// ProvisionalCount returns the size of the provisional index.
func (s *Store) ProvisionalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.provisional)
}

// FinalCount returns the size of the final index.
func (s *Store) FinalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.final)
}

// BadURLCount returns the size of the bad URL set.
func (s *Store) BadURLCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.badURLs)
}

// notifyUpdateLocked signals that a final entry changed.
// CALLER MUST HOLD s.mu.Lock()
func (s *Store) notifyUpdateLocked() {
	// Close the current channel to broadcast to all waiters
	select {
	case <-s.updateCh:
		// Already closed, do nothing (shouldn't happen if we strictly renew)
	default:
		close(s.updateCh)
		// Immediately create a fresh channel for future waiters
		s.updateCh = make(chan struct{})
	}
}

// GetUpdateChannel returns a channel that closes when a final entry changes.
func (s *Store) GetUpdateChannel() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateCh
}

// WaitForFinal blocks until the fingerprint has a final descriptor or the
// context is cancelled.
func (s *Store) WaitForFinal(ctx context.Context, fingerprint string) (Descriptor, error) {
	for {
		s.mu.RLock()
		if d, ok := s.final[fingerprint]; ok {
			s.mu.RUnlock()
			return d, nil
		}
		// Grab the current channel while holding the lock
		ch := s.updateCh
		s.mu.RUnlock()

		select {
		case <-ch:
			// A final landed somewhere, loop back and check ours
			continue
		case <-ctx.Done():
			return Descriptor{}, ctx.Err()
		}
	}
}
