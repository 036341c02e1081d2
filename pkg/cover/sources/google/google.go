// Package google resolves covers through the Google Books volumes API,
// by ISBN query or directly by volume id.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/pagebound/jacket/pkg/cover"
	"github.com/pagebound/jacket/pkg/provenance"
	"github.com/pagebound/jacket/util/log"
)

const (
	volumesByISBNURL = "https://www.googleapis.com/books/v1/volumes?q=isbn:%s"
	volumeByIDURL    = "https://www.googleapis.com/books/v1/volumes/%s"

	// apiInterval paces volumes API calls so parallel convergences stay
	// inside the default quota.
	apiInterval = 200 * time.Millisecond
)

func init() {
	cover.RegisterSource(cover.ProviderGoogle.String(), func(deps cover.SourceDeps) cover.Source {
		return New(deps)
	})
}

// Source implements cover.Source over the volumes API.
type Source struct {
	deps    cover.SourceDeps
	limiter *rate.Limiter
}

// New creates the Google Books source.
func New(deps cover.SourceDeps) *Source {
	return &Source{
		deps:    deps,
		limiter: rate.NewLimiter(rate.Every(apiInterval), 1),
	}
}

// Name returns the display name used in provenance attempts.
func (s *Source) Name() string {
	return cover.ProviderGoogle.String()
}

// volumesResponse is the slice of the volumes list answer we read.
type volumesResponse struct {
	TotalItems int          `json:"totalItems"`
	Items      []volumeItem `json:"items"`
}

type volumeItem struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title      string     `json:"title"`
	ImageLinks imageLinks `json:"imageLinks"`
}

type imageLinks struct {
	ExtraLarge     string `json:"extraLarge"`
	Large          string `json:"large"`
	Medium         string `json:"medium"`
	Small          string `json:"small"`
	Thumbnail      string `json:"thumbnail"`
	SmallThumbnail string `json:"smallThumbnail"`
}

// ordered returns the links largest first.
func (l imageLinks) ordered() []string {
	return []string{l.ExtraLarge, l.Large, l.Medium, l.Small, l.Thumbnail, l.SmallThumbnail}
}

// Fetch queries by ISBN when the book has one, else by volume id.
func (s *Source) Fetch(ctx context.Context, book cover.Book, rec *provenance.Record) cover.Descriptor {
	switch {
	case book.ISBN() != "":
		return s.fetchByISBN(ctx, book, rec)
	case book.ID != "":
		return s.fetchByVolumeID(ctx, book, rec)
	default:
		rec.Add(provenance.Attempt{
			Source:  s.Name(),
			Outcome: provenance.OutcomeNotFound,
			Reason:  "book has neither isbn nor volume id",
		})
		return cover.PlaceholderDescriptor()
	}
}

func (s *Source) fetchByISBN(ctx context.Context, book cover.Book, rec *provenance.Record) cover.Descriptor {
	query := fmt.Sprintf(volumesByISBNURL, url.QueryEscape(book.ISBN()))

	body, ok := s.apiGET(ctx, query, "&", rec)
	if !ok {
		return cover.PlaceholderDescriptor()
	}

	var resp volumesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: provenance.OutcomeGeneric, Reason: "unparseable volumes response: " + err.Error()})
		return cover.PlaceholderDescriptor()
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: provenance.OutcomeNotFound, Reason: "no volumes for isbn"})
		return cover.PlaceholderDescriptor()
	}

	for _, item := range resp.Items {
		if coverURL, ok := likelyCoverLink(item.VolumeInfo.ImageLinks); ok {
			return s.download(ctx, book, item.ID, coverURL, rec)
		}
	}

	rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: provenance.OutcomeNotFound, Reason: "volumes carry no likely cover image"})
	return cover.PlaceholderDescriptor()
}

func (s *Source) fetchByVolumeID(ctx context.Context, book cover.Book, rec *provenance.Record) cover.Descriptor {
	query := fmt.Sprintf(volumeByIDURL, url.PathEscape(book.ID))

	body, ok := s.apiGET(ctx, query, "?", rec)
	if !ok {
		return cover.PlaceholderDescriptor()
	}

	var item volumeItem
	if err := json.Unmarshal(body, &item); err != nil {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: provenance.OutcomeGeneric, Reason: "unparseable volume response: " + err.Error()})
		return cover.PlaceholderDescriptor()
	}

	if coverURL, ok := likelyCoverLink(item.VolumeInfo.ImageLinks); ok {
		return s.download(ctx, book, item.ID, coverURL, rec)
	}

	rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: provenance.OutcomeNotFound, Reason: "volume carries no likely cover image"})
	return cover.PlaceholderDescriptor()
}

// apiGET performs one paced volumes API call. keySep is the separator an
// api key is appended with, given the query's existing shape.
func (s *Source) apiGET(ctx context.Context, query, keySep string, rec *provenance.Record) ([]byte, bool) {
	target := query
	if key := s.deps.Config.GoogleAPIKey(); key != "" {
		target = query + keySep + "key=" + url.QueryEscape(key)
	}

	callCtx, cancel := context.WithTimeout(ctx, cover.DownloadTimeout)
	defer cancel()

	if err := s.limiter.Wait(callCtx); err != nil {
		rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: apiOutcome(err), Reason: "rate limiter: " + err.Error()})
		return nil, false
	}

	body, err := s.deps.Fetcher.FetchBytes(callCtx, target)
	if err != nil {
		// Log and record the keyless query so the credential never leaks.
		log.Debugf("google books: %s failed: %v", query, err)
		rec.Add(provenance.Attempt{Source: s.Name(), Target: query, Outcome: apiOutcome(err), Reason: err.Error()})
		return nil, false
	}
	return body, true
}

func (s *Source) download(ctx context.Context, book cover.Book, volumeID, coverURL string, rec *provenance.Record) cover.Descriptor {
	desc, _ := s.deps.Cache.DownloadAndStore(ctx, coverURL, book.Fingerprint(), cover.ProviderGoogle, rec)
	if !desc.IsPlaceholder() {
		desc.ArtifactID = volumeID
	}
	return desc
}

// likelyCoverLink picks the largest image link that survives enhancement
// and still looks like a front cover.
func likelyCoverLink(links imageLinks) (string, bool) {
	for _, link := range links.ordered() {
		if link == "" {
			continue
		}
		enhanced := cover.EnhanceGoogleURL(link)
		if cover.LikelyGoogleCover(enhanced) {
			return enhanced, true
		}
	}
	return "", false
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
