// Package openlibrary resolves covers from the Open Library covers
// service. Each of the three size tiers registers as its own source so
// they race independently.
package openlibrary

import (
	"context"
	"fmt"

	"github.com/pagebound/jacket/pkg/cover"
	"github.com/pagebound/jacket/pkg/provenance"
)

// coverByISBNURL composes the by-ISBN cover endpoint; the second verb is
// the size letter (L, M or S).
const coverByISBNURL = "https://covers.openlibrary.org/b/isbn/%s-%s.jpg"

func init() {
	for provider, size := range map[cover.Provider]string{
		cover.ProviderOpenLibraryL: "L",
		cover.ProviderOpenLibraryM: "M",
		cover.ProviderOpenLibraryS: "S",
	} {
		provider, size := provider, size
		cover.RegisterSource(provider.String(), func(deps cover.SourceDeps) cover.Source {
			return New(deps, provider, size)
		})
	}
}

// Source fetches one size tier for a book's ISBN.
type Source struct {
	deps     cover.SourceDeps
	provider cover.Provider
	size     string
}

// New creates an Open Library source for the given tier.
func New(deps cover.SourceDeps, provider cover.Provider, size string) *Source {
	return &Source{deps: deps, provider: provider, size: size}
}

// Name returns the display name used in provenance attempts.
func (s *Source) Name() string {
	return s.provider.String()
}

// Fetch downloads the tier's cover for the book's ISBN. A definitive
// miss marks the ISBN bad so later lookups skip all three tiers.
func (s *Source) Fetch(ctx context.Context, book cover.Book, rec *provenance.Record) cover.Descriptor {
	isbn := book.ISBN()
	if isbn == "" {
		rec.Add(provenance.Attempt{
			Source:  s.Name(),
			Outcome: provenance.OutcomeNotFound,
			Reason:  "book has no isbn",
		})
		return cover.PlaceholderDescriptor()
	}

	if s.deps.Store.IsBadOpenLibrary(isbn) {
		rec.Add(provenance.Attempt{
			Source:  s.Name(),
			Outcome: provenance.OutcomeSkippedKnownBad,
			Reason:  "isbn previously missed on open library",
		})
		return cover.PlaceholderDescriptor()
	}

	coverURL := fmt.Sprintf(coverByISBNURL, isbn, s.size)
	desc, outcome := s.deps.Cache.DownloadAndStore(ctx, coverURL, book.Fingerprint(), s.provider, rec)
	if cover.DefinitiveMiss(outcome) {
		s.deps.Store.MarkBadOpenLibrary(isbn)
	}
	return desc
}
