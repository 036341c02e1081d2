package cover

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/provenance"
	"github.com/pagebound/jacket/util"
	"github.com/pagebound/jacket/util/log"
)

// cacheExts is the allowed set of extensions a download may be stored
// under; anything else falls back to .jpg.
var cacheExts = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}, "svg": {}, "bmp": {}, "tiff": {},
}

// DiskCache is the idempotent on-disk cache of downloaded covers, keyed
// by URL hash. It owns every file under its directory.
type DiskCache struct {
	dir     string // absolute cache directory
	dirName string // served path element, e.g. "book-covers"
	maxAge  time.Duration
	enabled bool

	fetcher    Fetcher
	store      *Store
	normalizer *Normalizer
	registry   *PlaceholderRegistry

	cleanupBusy *util.SafeFlag
}

// NewDiskCache builds the cache over the configured directory. A
// directory that cannot be created disables the cache for the process
// instead of failing startup.
func NewDiskCache(cfg *config.Config, fetcher Fetcher, store *Store, normalizer *Normalizer, registry *PlaceholderRegistry) *DiskCache {
	c := &DiskCache{
		dir:         cfg.Cache.Dir,
		dirName:     filepath.Base(cfg.Cache.Dir),
		maxAge:      time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour,
		fetcher:     fetcher,
		store:       store,
		normalizer:  normalizer,
		registry:    registry,
		cleanupBusy: util.NewSafeBool(),
	}

	if !cfg.Cache.Enabled {
		log.Print("Disk cache disabled by configuration.")
		return c
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		log.Errorf("disk cache: cannot create %s, caching disabled: %v", c.dir, err)
		return c
	}
	c.enabled = true
	return c
}

// Enabled reports whether the cache directory is usable.
func (c *DiskCache) Enabled() bool {
	return c.enabled
}

// DownloadAndStore resolves a URL to a local cover file: known-bad
// screen, warm hit, download, placeholder-fingerprint screen,
// normalization, atomic write. Every path appends one provenance attempt
// and every failure degrades to the placeholder descriptor. The returned
// outcome is the same one recorded, so adapters can react to definitive
// misses.
func (c *DiskCache) DownloadAndStore(ctx context.Context, url, bookTag string, origin Provider, rec *provenance.Record) (Descriptor, provenance.Outcome) {
	label := origin.String()

	if !c.enabled {
		rec.Add(provenance.Attempt{Source: label, Target: url, Outcome: provenance.OutcomeGeneric, Reason: "disk cache disabled"})
		return PlaceholderDescriptor(), provenance.OutcomeGeneric
	}
	if c.store.IsBadURL(url) {
		rec.Add(provenance.Attempt{Source: label, Target: url, Outcome: provenance.OutcomeSkippedKnownBad})
		return PlaceholderDescriptor(), provenance.OutcomeSkippedKnownBad
	}

	filename := cacheFilename(url)
	dest := filepath.Join(c.dir, filename)
	location := "/" + c.dirName + "/" + filename

	// Warm hit: trust the file if its dimensions still decode; otherwise
	// drop it and fetch again.
	if _, err := os.Stat(dest); err == nil {
		if w, h, derr := decodeDims(dest); derr == nil {
			rec.Add(provenance.Attempt{
				Source: label, Target: url, Outcome: provenance.OutcomeSuccess,
				FetchedLocation: location, Width: w, Height: h,
			})
			return Descriptor{Location: location, Storage: StorageLocal, Provider: origin, Width: w, Height: h}, provenance.OutcomeSuccess
		}
		log.Warnf("disk cache: %s no longer decodes, refetching: %v", filename, err)
		os.Remove(dest)
	}

	log.Debugf("disk cache: downloading %s for %s via %s", url, bookTag, label)

	dlCtx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	body, err := c.fetcher.FetchBytes(dlCtx, url)
	if err != nil {
		c.store.MarkBadURL(url)
		outcome := fetchOutcome(err)
		rec.Add(provenance.Attempt{Source: label, Target: url, Outcome: outcome, Reason: err.Error()})
		return PlaceholderDescriptor(), outcome
	}

	sum := sha256.Sum256(body)
	if c.registry.Matches(hex.EncodeToString(sum[:])) {
		c.store.MarkBadURL(url)
		rec.Add(provenance.Attempt{Source: label, Target: url, Outcome: provenance.OutcomePlaceholderMatch})
		return PlaceholderDescriptor(), provenance.OutcomePlaceholderMatch
	}

	norm, err := c.normalizer.Normalize(body)
	if err != nil {
		c.store.MarkBadURL(url)
		outcome := normalizeOutcome(err)
		rec.Add(provenance.Attempt{Source: label, Target: url, Outcome: outcome, Reason: err.Error()})
		return PlaceholderDescriptor(), outcome
	}

	if err := atomicWrite(c.dir, dest, norm.Bytes); err != nil {
		// The URL was fine; only the local disk failed. Do not blacklist.
		rec.Add(provenance.Attempt{Source: label, Target: url, Outcome: provenance.OutcomeIo, Reason: err.Error()})
		return PlaceholderDescriptor(), provenance.OutcomeIo
	}

	stored := sha256.Sum256(norm.Bytes)
	rec.Add(provenance.Attempt{
		Source: label, Target: url, Outcome: provenance.OutcomeSuccess,
		FetchedLocation: location, Width: norm.Width, Height: norm.Height,
	})
	return Descriptor{
		Location:    location,
		Storage:     StorageLocal,
		Provider:    origin,
		Width:       norm.Width,
		Height:      norm.Height,
		ContentHash: hex.EncodeToString(stored[:]),
	}, provenance.OutcomeSuccess
}

// DefinitiveMiss reports whether an outcome means the source positively
// has no usable cover, as opposed to a transient or local fault.
func DefinitiveMiss(outcome provenance.Outcome) bool {
	switch outcome {
	case provenance.OutcomeNotFound,
		provenance.OutcomeEmpty,
		provenance.OutcomePlaceholderMatch,
		provenance.OutcomeProcessing,
		provenance.OutcomeContentRejected:
		return true
	default:
		return false
	}
}

// IsCachedLocation reports whether a location string points into this
// cache's served directory.
func (c *DiskCache) IsCachedLocation(location string) bool {
	return strings.HasPrefix(location, "/"+c.dirName+"/")
}

// FilePathFor maps a served location back to the absolute file path.
func (c *DiskCache) FilePathFor(location string) (string, bool) {
	if !c.IsCachedLocation(location) {
		return "", false
	}
	name := strings.TrimPrefix(location, "/"+c.dirName+"/")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return filepath.Join(c.dir, name), true
}

// ReadFile returns the stored bytes for a served location.
func (c *DiskCache) ReadFile(location string) ([]byte, error) {
	p, ok := c.FilePathFor(location)
	if !ok {
		return nil, fmt.Errorf("not a cache location: %s", location)
	}
	return os.ReadFile(p)
}

// Dir returns the absolute cache directory.
func (c *DiskCache) Dir() string {
	return c.dir
}

// RoutePrefix returns the URL path prefix cached locations are served
// under, with leading and trailing slashes.
func (c *DiskCache) RoutePrefix() string {
	return "/" + c.dirName + "/"
}

// cacheFilename derives the deterministic file name for a URL: the first
// 32 characters of the url-safe base64 SHA-256, plus the URL's extension.
func cacheFilename(url string) string {
	sum := sha256.Sum256([]byte(url))
	return base64.URLEncoding.EncodeToString(sum[:])[:32] + extFromURL(url)
}

// extFromURL extracts the extension from the URL path, query stripped,
// restricted to the known image extensions. Default is .jpg.
func extFromURL(url string) string {
	p := url
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if _, ok := cacheExts[ext]; !ok {
		return ".jpg"
	}
	return "." + ext
}

// decodeDims reads just enough of a file to get its pixel dimensions.
func decodeDims(p string) (int, int, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// atomicWrite lands bytes at dest via a temp file and rename, so readers
// never observe a partial cover.
func atomicWrite(dir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// fetchOutcome maps transport errors onto provenance outcomes.
func fetchOutcome(err error) provenance.Outcome {
	switch {
	case errors.Is(err, ErrNotFound):
		return provenance.OutcomeNotFound
	case errors.Is(err, ErrEmptyBody):
		return provenance.OutcomeEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return provenance.OutcomeTimeout
	default:
		return provenance.OutcomeGeneric
	}
}

// normalizeOutcome maps normalizer errors onto provenance outcomes.
func normalizeOutcome(err error) provenance.Outcome {
	var rej *RejectError
	if errors.As(err, &rej) {
		return provenance.OutcomeContentRejected
	}
	return provenance.OutcomeProcessing
}
