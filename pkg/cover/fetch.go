package cover

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pagebound/jacket/pkg/provenance"
	"github.com/pagebound/jacket/util/log"
)

// fetchBest races every applicable source for the book and returns the
// best valid candidate, or the placeholder when nothing usable turned
// up. hint is the provider URL carried on the book record, if any. Every
// attempt and the final selection land in rec.
func (s *Service) fetchBest(ctx context.Context, book Book, hint string, rec *provenance.Record) Descriptor {
	// A catalog-carried descriptor that is already durable and measured
	// cannot be beaten by anything the sources produce; skip the network.
	if c := book.Cover; c != nil && c.Valid() && c.class() == 0 {
		rec.Add(provenance.Attempt{
			Source:          ProviderObjectStore.String(),
			Target:          c.ArtifactID,
			Outcome:         provenance.OutcomeSuccess,
			Reason:          "catalog descriptor already durable",
			FetchedLocation: c.Location,
			Width:           c.Width,
			Height:          c.Height,
		})
		s.recordSelection(rec, *c, "catalog descriptor already durable")
		return *c
	}

	var candidates []Descriptor
	candidates = append(candidates, s.hintCandidates(ctx, book, hint, rec)...)
	candidates = append(candidates, s.osSource.Fetch(ctx, book, rec))
	candidates = append(candidates, s.fanOut(ctx, book, rec)...)

	best, ok := selectBest(candidates)
	if !ok {
		return PlaceholderDescriptor()
	}
	s.recordSelection(rec, best, fmt.Sprintf("won selection among %d candidates", len(candidates)))
	return best
}

// hintCandidates downloads the provisional hint, when one is worth
// chasing. Google hints expand to their URL variants and race; any other
// hint must measure at least hintMinDimensionPx on both axes to count.
func (s *Service) hintCandidates(ctx context.Context, book Book, hint string, rec *provenance.Record) []Descriptor {
	hint = strings.TrimSpace(hint)
	if hint == "" || hint == PlaceholderPath || s.cache.IsCachedLocation(hint) {
		return nil
	}

	origin := InferProvider(hint, s.cfg.ObjectStore.CDNURL, s.cfg.ObjectStore.PublicCDNURL)
	tag := book.Fingerprint()

	if origin == ProviderGoogle {
		variants := googleHintVariants(hint)
		out := make([]Descriptor, len(variants))
		var wg sync.WaitGroup
		for i, v := range variants {
			wg.Add(1)
			go func(i int, v string) {
				defer wg.Done()
				out[i], _ = s.cache.DownloadAndStore(ctx, v, tag, ProviderGoogle, rec)
			}(i, v)
		}
		wg.Wait()
		return out
	}

	if origin == ProviderUnknown {
		origin = ProviderHint
	}

	desc, _ := s.cache.DownloadAndStore(ctx, hint, tag, origin, rec)
	if desc.IsPlaceholder() {
		return nil
	}
	if desc.Width < hintMinDimensionPx || desc.Height < hintMinDimensionPx {
		rec.Add(provenance.Attempt{
			Source:  ProviderHint.String(),
			Target:  hint,
			Outcome: provenance.OutcomeContentRejected,
			Reason:  fmt.Sprintf("hint is %dx%d, below the %d px floor", desc.Width, desc.Height, hintMinDimensionPx),
		})
		return nil
	}
	return []Descriptor{desc}
}

// sourceOrder returns the display names to race for the book, in
// selection tie-break order. Books without an ISBN can only be resolved
// through Google's volume id lookup.
func (s *Service) sourceOrder(book Book) []string {
	if book.ISBN() != "" {
		return []string{
			ProviderGoogle.String(),
			ProviderOpenLibraryL.String(),
			ProviderOpenLibraryM.String(),
			ProviderOpenLibraryS.String(),
			ProviderLongitood.String(),
		}
	}
	if book.ID != "" {
		return []string{ProviderGoogle.String()}
	}
	return nil
}

// fanOut runs the remaining sources in parallel and collects their
// candidates in order. A panicking source contributes a placeholder;
// nothing propagates past the join.
func (s *Service) fanOut(ctx context.Context, book Book, rec *provenance.Record) []Descriptor {
	names := s.sourceOrder(book)
	out := make([]Descriptor, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		src, ok := s.sources[name]
		if !ok {
			out[i] = PlaceholderDescriptor()
			continue
		}
		i, src := i, src
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("cover fetch: source %s panicked: %v", src.Name(), r)
					out[i] = PlaceholderDescriptor()
				}
			}()
			out[i] = src.Fetch(gctx, book, rec)
			return nil
		})
	}
	_ = g.Wait() // sources never return errors

	return out
}

// selectBest picks the winner: storage class first, then area, then
// provider preference. betterThan is strict, so earlier candidates win
// exact ties.
func selectBest(candidates []Descriptor) (Descriptor, bool) {
	var best Descriptor
	found := false
	for _, c := range candidates {
		if !c.Valid() || c.IsPlaceholder() {
			continue
		}
		if !found || c.betterThan(best) {
			best = c
			found = true
		}
	}
	return best, found
}

func (s *Service) recordSelection(rec *provenance.Record, d Descriptor, reason string) {
	objectKey := ""
	if d.Storage == StorageObjectStore {
		objectKey = d.ArtifactID
	}
	rec.Select(provenance.Selected{
		Source:       d.Provider.String(),
		Location:     d.Location,
		Width:        d.Width,
		Height:       d.Height,
		Reason:       reason,
		StorageLabel: d.Storage.String(),
		ObjectKey:    objectKey,
	})
}
