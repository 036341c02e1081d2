package cover

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pagebound/jacket/asset"
	"github.com/pagebound/jacket/util/log"
)

// PlaceholderRegistry holds SHA-256 fingerprints of the "image not
// available" cards providers serve instead of a 404. A download whose
// hash matches one of them is as good as no download at all.
type PlaceholderRegistry struct {
	hashes  map[string]struct{}
	enabled bool
}

// NewPlaceholderRegistry fingerprints the embedded reference images.
// A load failure disables matching and logs once; construction itself
// never fails.
func NewPlaceholderRegistry(assets *asset.Manager) *PlaceholderRegistry {
	r := &PlaceholderRegistry{hashes: make(map[string]struct{})}

	names, err := assets.ReferenceImages()
	if err != nil {
		log.Errorf("placeholder registry: listing reference images failed, matching disabled: %v", err)
		return r
	}

	for _, name := range names {
		data, err := assets.GetRawImage(name)
		if err != nil {
			log.Errorf("placeholder registry: loading %s failed, matching disabled: %v", name, err)
			r.hashes = make(map[string]struct{})
			return r
		}
		sum := sha256.Sum256(data)
		r.hashes[hex.EncodeToString(sum[:])] = struct{}{}
	}

	r.enabled = len(r.hashes) > 0
	if !r.enabled {
		log.Warnf("placeholder registry: no reference images embedded, matching disabled")
	}
	return r
}

// Matches reports whether the hex SHA-256 belongs to a known placeholder
// image. Always false when matching is disabled.
func (r *PlaceholderRegistry) Matches(hexHash string) bool {
	if r == nil || !r.enabled {
		return false
	}
	_, ok := r.hashes[hexHash]
	return ok
}

// MatchesBytes fingerprints the blob and checks it in one step.
func (r *PlaceholderRegistry) MatchesBytes(data []byte) bool {
	if r == nil || !r.enabled {
		return false
	}
	sum := sha256.Sum256(data)
	return r.Matches(hex.EncodeToString(sum[:]))
}

// Enabled reports whether fingerprint matching is active.
func (r *PlaceholderRegistry) Enabled() bool {
	return r != nil && r.enabled
}
