package cover

import (
	"context"

	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/objectstore"
	"github.com/pagebound/jacket/pkg/provenance"
)

// Source produces at most one cover candidate for a book. Implementations
// never return an error: every failure is logged to provenance and
// degrades to the placeholder descriptor.
type Source interface {
	// Name is the display name recorded in provenance attempts.
	Name() string
	// Fetch resolves the book to a candidate descriptor.
	Fetch(ctx context.Context, book Book, rec *provenance.Record) Descriptor
}

// SourceDeps is handed to source factories at construction.
type SourceDeps struct {
	Fetcher Fetcher
	Cache   *DiskCache
	Store   *Store
	Config  *config.Config
}

// objectStoreSource adapts the gateway's probe into a Source. It is wired
// directly rather than registered, since it needs the gateway.
type objectStoreSource struct {
	gateway *objectstore.Gateway
}

func (s *objectStoreSource) Name() string {
	return ProviderObjectStore.String()
}

// Fetch probes every known key slug for the book and turns the first hit
// into an object-store descriptor. Dimensions come from the object's
// user metadata; an object without them stays unmeasured and cannot win
// selection.
func (s *objectStoreSource) Fetch(ctx context.Context, book Book, rec *provenance.Record) Descriptor {
	tag := book.Fingerprint()
	if s.gateway == nil || tag == "" {
		rec.Add(provenance.Attempt{
			Source:  s.Name(),
			Outcome: provenance.OutcomeNotFound,
			Reason:  "object store not configured or book has no tag",
		})
		return PlaceholderDescriptor()
	}

	info, ok := s.gateway.ProbeAny(ctx, tag, ".jpg")
	if !ok {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: tag, Outcome: provenance.OutcomeNotFound})
		return PlaceholderDescriptor()
	}

	rec.Add(provenance.Attempt{
		Source:          s.Name(),
		Target:          info.Key,
		Outcome:         provenance.OutcomeSuccess,
		FetchedLocation: info.PublicURL,
		Width:           info.Width,
		Height:          info.Height,
	})
	return Descriptor{
		Location:   info.PublicURL,
		Storage:    StorageObjectStore,
		Provider:   ProviderObjectStore,
		ArtifactID: info.Key,
		Width:      info.Width,
		Height:     info.Height,
	}
}
