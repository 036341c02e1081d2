// Package longitood resolves covers through the Longitood bookcover API,
// a two-step source: the API maps an ISBN to an image URL, then the
// image is downloaded like any other remote cover.
package longitood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pagebound/jacket/pkg/cover"
	"github.com/pagebound/jacket/pkg/provenance"
)

const coverByISBNURL = "https://bookcover.longitood.com/bookcover/%s"

func init() {
	cover.RegisterSource(cover.ProviderLongitood.String(), func(deps cover.SourceDeps) cover.Source {
		return New(deps)
	})
}

// Source implements cover.Source over the bookcover API.
type Source struct {
	deps cover.SourceDeps
}

// New creates the Longitood source.
func New(deps cover.SourceDeps) *Source {
	return &Source{deps: deps}
}

// Name returns the display name used in provenance attempts.
func (s *Source) Name() string {
	return cover.ProviderLongitood.String()
}

// coverResponse is the API's answer shape.
type coverResponse struct {
	URL string `json:"url"`
}

// Fetch asks the API for the book's cover URL and downloads it. A
// definitive miss on either step marks the ISBN bad for this source.
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

	if s.deps.Store.IsBadLongitood(isbn) {
		rec.Add(provenance.Attempt{
			Source:  s.Name(),
			Outcome: provenance.OutcomeSkippedKnownBad,
			Reason:  "isbn previously missed on longitood",
		})
		return cover.PlaceholderDescriptor()
	}

	endpoint := fmt.Sprintf(coverByISBNURL, isbn)

	callCtx, cancel := context.WithTimeout(ctx, cover.DownloadTimeout)
	defer cancel()

	body, err := s.deps.Fetcher.FetchBytes(callCtx, endpoint)
	if err != nil {
		outcome := apiOutcome(err)
		rec.Add(provenance.Attempt{Source: s.Name(), Target: endpoint, Outcome: outcome, Reason: err.Error()})
		if cover.DefinitiveMiss(outcome) {
			s.deps.Store.MarkBadLongitood(isbn)
		}
		return cover.PlaceholderDescriptor()
	}

	var resp coverResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: endpoint, Outcome: provenance.OutcomeGeneric, Reason: "unparseable bookcover response: " + err.Error()})
		return cover.PlaceholderDescriptor()
	}
	if resp.URL == "" {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: endpoint, Outcome: provenance.OutcomeNotFound, Reason: "api returned no cover url"})
		s.deps.Store.MarkBadLongitood(isbn)
		return cover.PlaceholderDescriptor()
	}

	desc, outcome := s.deps.Cache.DownloadAndStore(ctx, resp.URL, book.Fingerprint(), cover.ProviderLongitood, rec)
	if cover.DefinitiveMiss(outcome) {
		s.deps.Store.MarkBadLongitood(isbn)
	}
	return desc
}

func apiOutcome(err error) provenance.Outcome {
	switch {
	case errors.Is(err, cover.ErrNotFound):
		return provenance.OutcomeNotFound
	case errors.Is(err, cover.ErrEmptyBody):
		return provenance.OutcomeEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return provenance.OutcomeTimeout
	default:
		return provenance.OutcomeGeneric
	}
}
