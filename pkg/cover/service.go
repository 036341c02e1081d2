package cover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pagebound/jacket/asset"
	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/events"
	"github.com/pagebound/jacket/pkg/objectstore"
	"github.com/pagebound/jacket/pkg/provenance"
	"github.com/pagebound/jacket/util"
	"github.com/pagebound/jacket/util/log"
)

// CatalogStore resolves a catalog identifier to a book record. The
// catalog service implements this; tests use a stub.
type CatalogStore interface {
	Lookup(ctx context.Context, identifier string) (Book, bool, error)
}

// Service is the cover facade: a synchronous resolve that always answers
// with a displayable URL, plus background convergence toward the durable
// object-store artifact.
type Service struct {
	cfg     *config.Config
	enabled bool

	store      *Store
	cache      *DiskCache
	normalizer *Normalizer
	gateway    *objectstore.Gateway
	sources    map[string]Source
	osSource   Source
	bus        events.Bus
	catalog    CatalogStore
	pipeline   *Pipeline

	cleanupStop chan struct{}
	stopOnce    sync.Once
	converges   *util.SafeCounter
}

// NewService wires the full cover subsystem from configuration. bus and
// catalog may be nil; events are then dropped and InitialCoverByID is
// unavailable.
func NewService(cfg *config.Config, assets *asset.Manager, bus events.Bus, catalog CatalogStore) (*Service, error) {
	fetcher := NewHTTPFetcher()
	store := NewStore()
	normalizer := NewNormalizer()
	registry := NewPlaceholderRegistry(assets)
	cache := NewDiskCache(cfg, fetcher, store, normalizer, registry)

	var gateway *objectstore.Gateway
	if cfg.ObjectStore.Enabled {
		g, err := objectstore.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("building object store gateway: %w", err)
		}
		gateway = g
	}

	s := &Service{
		cfg:         cfg,
		enabled:     cfg.Cache.Enabled,
		store:       store,
		cache:       cache,
		normalizer:  normalizer,
		gateway:     gateway,
		bus:         bus,
		catalog:     catalog,
		cleanupStop: make(chan struct{}),
		converges:   util.NewSafeInt(),
	}
	s.sources = buildSources(SourceDeps{Fetcher: fetcher, Cache: cache, Store: store, Config: cfg})
	s.osSource = &objectStoreSource{gateway: gateway}
	s.pipeline = NewPipeline(s.converge)
	return s, nil
}

// Start launches the convergence workers and the daily cache cleanup.
func (s *Service) Start() {
	s.pipeline.Start(convergeWorkers)
	s.startCleanupScheduler()
}

// Stop drains the convergence queue and halts the cleanup scheduler.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.cleanupStop)
		s.pipeline.Stop()
	})
}

// Store exposes the in-memory indexes, mainly for the admin surface.
func (s *Service) Store() *Store {
	return s.store
}

// CacheDir returns the disk cache directory so the daemon can serve it.
func (s *Service) CacheDir() string {
	return s.cache.Dir()
}

// CacheRoutePrefix returns the URL prefix cached covers are served under.
func (s *Service) CacheRoutePrefix() string {
	return s.cache.RoutePrefix()
}

// ConvergeCount reports how many convergences have completed.
func (s *Service) ConvergeCount() int {
	return s.converges.Value()
}

// InitialCover answers synchronously with a URL that can be rendered
// right away, and schedules background convergence when the answer is
// not already durable. It never fails.
func (s *Service) InitialCover(ctx context.Context, book Book) URLs {
	if !s.enabled {
		return placeholderURLs()
	}
	fp := book.Fingerprint()
	if fp == "" {
		return placeholderURLs()
	}

	fallback := fallbackURL(book)

	// A durable artifact beats everything; record it and answer without
	// scheduling any further work.
	if d := s.osSource.Fetch(ctx, book, nil); d.Valid() && d.Storage == StorageObjectStore {
		s.store.SetFinal(fp, d)
		return URLs{Preferred: d.Location, Fallback: fallback, Provider: ProviderObjectStore}
	}

	if d, ok := s.store.Final(fp); ok {
		return URLs{Preferred: d.Location, Fallback: fallback, Provider: d.Provider}
	}

	if u, ok := s.store.Provisional(fp); ok {
		return URLs{Preferred: u, Fallback: fallback, Provider: s.inferProvider(u)}
	}

	preferred := PlaceholderPath
	if u := strings.TrimSpace(book.CoverURL); u != "" && u != PlaceholderPath {
		preferred = u
	}
	s.store.SetProvisional(fp, preferred)

	hint := ""
	if preferred != PlaceholderPath {
		hint = preferred
	}
	if !s.pipeline.Submit(ConvergeJob{Book: book, Hint: hint}) {
		log.Debugf("convergence for %s not scheduled", fp)
	}

	return URLs{Preferred: preferred, Fallback: fallback, Provider: s.inferProvider(preferred)}
}

// InitialCoverByID looks the identifier up in the catalog and resolves
// that book. An unknown identifier yields placeholders without error.
func (s *Service) InitialCoverByID(ctx context.Context, identifier string) (URLs, error) {
	if s.catalog == nil {
		return placeholderURLs(), fmt.Errorf("no catalog store configured")
	}
	book, ok, err := s.catalog.Lookup(ctx, identifier)
	if err != nil {
		return placeholderURLs(), fmt.Errorf("catalog lookup for %s: %w", identifier, err)
	}
	if !ok {
		return placeholderURLs(), nil
	}
	return s.InitialCover(ctx, book), nil
}

// ConvergeNow resolves a book synchronously through the full pipeline,
// bypassing the worker queue. Diagnostic tools use it; the returned
// record holds every attempt.
func (s *Service) ConvergeNow(ctx context.Context, book Book) (Descriptor, *provenance.Record) {
	fp := book.Fingerprint()
	rec := provenance.New(fp)
	if !s.enabled || fp == "" {
		return PlaceholderDescriptor(), rec
	}

	hint := ""
	if u := strings.TrimSpace(book.CoverURL); u != "" && u != PlaceholderPath {
		hint = u
	}

	winner := s.fetchBest(ctx, book, hint, rec)
	final := winner
	if !winner.IsPlaceholder() && winner.Storage == StorageLocal {
		final = s.promote(ctx, fp, winner, rec)
	}
	return s.finishConverge(fp, book, final, rec), rec
}

// converge is the worker-pool job body. Exactly one final entry is
// written and exactly one event is published per run, the placeholder
// when anything goes wrong.
func (s *Service) converge(ctx context.Context, job ConvergeJob) {
	book := job.Book
	fp := book.Fingerprint()
	if fp == "" {
		return
	}
	rec := provenance.New(fp)

	finished := false
	finish := func(final Descriptor) {
		if finished {
			return
		}
		finished = true
		s.finishConverge(fp, book, final, rec)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("convergence for %s panicked: %v", fp, r)
			finish(PlaceholderDescriptor())
		}
	}()

	winner := s.fetchBest(ctx, book, job.Hint, rec)
	final := winner
	if !winner.IsPlaceholder() && winner.Storage == StorageLocal {
		final = s.promote(ctx, fp, winner, rec)
	}
	finish(final)
}

// promote uploads a locally cached winner to the object store. On any
// failure the local descriptor stands; next convergence tries again.
func (s *Service) promote(ctx context.Context, fp string, winner Descriptor, rec *provenance.Record) Descriptor {
	if s.gateway == nil {
		return winner
	}

	raw, err := s.cache.ReadFile(winner.Location)
	if err != nil {
		log.Warnf("promote %s: reading cached cover: %v", fp, err)
		return winner
	}
	norm, err := s.normalizer.Normalize(raw)
	if err != nil {
		log.Warnf("promote %s: normalizing cached cover: %v", fp, err)
		return winner
	}

	doc, err := rec.JSON()
	if err != nil {
		doc = nil
	}

	info, err := s.gateway.Upload(ctx, objectstore.UploadInput{
		Bytes:      norm.Bytes,
		Ext:        norm.Ext,
		MIME:       norm.MIME,
		Width:      norm.Width,
		Height:     norm.Height,
		BookTag:    fp,
		SourceName: winner.Provider.CanonicalSourceName(),
		Provenance: doc,
	})
	if err != nil {
		log.Warnf("promote %s: upload failed, keeping local cover: %v", fp, err)
		rec.Add(provenance.Attempt{
			Source:  ProviderObjectStore.String(),
			Target:  fp,
			Outcome: provenance.OutcomeIo,
			Reason:  err.Error(),
		})
		return winner
	}

	sum := sha256.Sum256(norm.Bytes)
	return Descriptor{
		Location:    info.PublicURL,
		Storage:     StorageObjectStore,
		Provider:    winner.Provider,
		ArtifactID:  info.Key,
		Width:       norm.Width,
		Height:      norm.Height,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

// finishConverge writes the final entry, evicts the provisional one and
// publishes the update. The returned descriptor is the one that actually
// stands after monotonic suppression.
func (s *Service) finishConverge(fp string, book Book, final Descriptor, rec *provenance.Record) Descriptor {
	effective := s.store.SetFinal(fp, final)
	s.store.EvictProvisional(fp)
	s.converges.Increment()
	log.Debugf("convergence for %s done: %s", fp, rec.Summary())

	if s.bus != nil {
		s.bus.Publish(events.CoverUpdated{
			Fingerprint: fp,
			CatalogID:   book.ID,
			Location:    effective.Location,
			Provider:    effective.Provider.String(),
		})
	}
	return effective
}

// startCleanupScheduler runs one cleanup pass at startup and then one per
// interval until Stop.
func (s *Service) startCleanupScheduler() {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		s.cache.Cleanup()
		for {
			select {
			case <-ticker.C:
				s.cache.Cleanup()
			case <-s.cleanupStop:
				log.Print("Stopping cover cache cleanup scheduler.")
				return
			}
		}
	}()
}

func (s *Service) inferProvider(rawURL string) Provider {
	return InferProvider(rawURL, s.cfg.ObjectStore.CDNURL, s.cfg.ObjectStore.PublicCDNURL)
}

func placeholderURLs() URLs {
	return URLs{Preferred: PlaceholderPath, Fallback: PlaceholderPath, Provider: ProviderPlaceholder}
}

func fallbackURL(book Book) string {
	if u := strings.TrimSpace(book.CoverURL); u != "" {
		return u
	}
	return PlaceholderPath
}
