package cover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebound/jacket/asset"
	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/provenance"
)

// fakeFetcher counts calls and serves whatever fetch returns. Safe for
// the concurrent hint downloads.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, url string) ([]byte, error)
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fetch(ctx, url)
}

func newTestCache(t *testing.T, fetcher Fetcher) (*DiskCache, *Store) {
	t.Helper()
	cfg := &config.Config{Cache: config.CacheConfig{
		Enabled:    true,
		Dir:        filepath.Join(t.TempDir(), "book-covers"),
		MaxAgeDays: 30,
	}}
	store := NewStore()
	c := NewDiskCache(cfg, fetcher, store, NewNormalizer(), NewPlaceholderRegistry(asset.NewManager()))
	require.True(t, c.Enabled())
	return c, store
}

func TestDownloadStoresNormalizedCover(t *testing.T) {
	body := testJPEG(t, 400, 600)
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return body, nil
	}}
	c, _ := newTestCache(t, fetcher)

	rec := provenance.New("9780306406157")
	d, outcome := c.DownloadAndStore(context.Background(), "https://covers.example.com/a.jpg", "9780306406157", ProviderGoogle, rec)

	assert.Equal(t, provenance.OutcomeSuccess, outcome)
	assert.Equal(t, StorageLocal, d.Storage)
	assert.Equal(t, ProviderGoogle, d.Provider)
	assert.Equal(t, 400, d.Width)
	assert.Equal(t, 600, d.Height)
	assert.True(t, strings.HasPrefix(d.Location, "/book-covers/"))

	// The file landed where the location points, and the content hash is
	// the hash of the stored bytes.
	p, ok := c.FilePathFor(d.Location)
	require.True(t, ok)
	stored, err := os.ReadFile(p)
	require.NoError(t, err)
	sum := sha256.Sum256(stored)
	assert.Equal(t, hex.EncodeToString(sum[:]), d.ContentHash)

	// One attempt, with the served location on it.
	attempts := rec.Snapshot()
	require.Len(t, attempts, 1)
	assert.Equal(t, d.Location, attempts[0].FetchedLocation)
}

func TestCacheFilenameIsDeterministic(t *testing.T) {
	a := cacheFilename("https://covers.example.com/a.png?size=L")
	b := cacheFilename("https://covers.example.com/a.png?size=L")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32+len(".png"))
	assert.True(t, strings.HasSuffix(a, ".png"))

	// Different URLs map to different files.
	assert.NotEqual(t, a, cacheFilename("https://covers.example.com/b.png?size=L"))
}

func TestExtFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/cover.jpg", ".jpg"},
		{"https://example.com/cover.PNG", ".png"},
		{"https://example.com/cover.webp?x=1", ".webp"},
		{"https://example.com/cover.gif#frag", ".gif"},
		{"https://example.com/cover", ".jpg"},
		{"https://example.com/cover.exe", ".jpg"},
		{"https://example.com/books?id=x&printsec=frontcover", ".jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extFromURL(tt.url), tt.url)
	}
}

func TestWarmHitSkipsRefetch(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return testJPEG(t, 400, 600), nil
	}}
	c, _ := newTestCache(t, fetcher)
	rec := provenance.New("tag")

	url := "https://covers.example.com/a.jpg"
	first, outcome := c.DownloadAndStore(context.Background(), url, "tag", ProviderGoogle, rec)
	require.Equal(t, provenance.OutcomeSuccess, outcome)
	require.Equal(t, 1, fetcher.calls)

	second, outcome := c.DownloadAndStore(context.Background(), url, "tag", ProviderGoogle, rec)
	assert.Equal(t, provenance.OutcomeSuccess, outcome)
	assert.Equal(t, 1, fetcher.calls, "warm hit must not refetch")
	assert.Equal(t, first.Location, second.Location)
	assert.Equal(t, first.Width, second.Width)
	assert.Equal(t, first.Height, second.Height)
}

func TestWarmHitSelfHealsCorruptFiles(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return testJPEG(t, 400, 600), nil
	}}
	c, _ := newTestCache(t, fetcher)
	rec := provenance.New("tag")

	url := "https://covers.example.com/a.jpg"
	d, _ := c.DownloadAndStore(context.Background(), url, "tag", ProviderGoogle, rec)
	p, ok := c.FilePathFor(d.Location)
	require.True(t, ok)

	// Truncate the cached file so it no longer decodes.
	require.NoError(t, os.WriteFile(p, []byte("not a jpeg"), 0o644))

	d2, outcome := c.DownloadAndStore(context.Background(), url, "tag", ProviderGoogle, rec)
	assert.Equal(t, provenance.OutcomeSuccess, outcome)
	assert.Equal(t, 2, fetcher.calls, "corrupt file forces a refetch")
	assert.Equal(t, 400, d2.Width)

	restored, err := os.ReadFile(p)
	require.NoError(t, err)
	w, h := decodeDimsFromBytes(t, restored)
	assert.Equal(t, 400, w)
	assert.Equal(t, 600, h)
}

func TestNotFoundMarksURLBad(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return nil, ErrNotFound
	}}
	c, store := newTestCache(t, fetcher)
	rec := provenance.New("tag")

	url := "https://covers.example.com/missing.jpg"
	d, outcome := c.DownloadAndStore(context.Background(), url, "tag", ProviderOpenLibraryL, rec)
	assert.Equal(t, provenance.OutcomeNotFound, outcome)
	assert.True(t, d.IsPlaceholder())
	assert.True(t, store.IsBadURL(url))

	// The second try is screened without touching the network.
	_, outcome = c.DownloadAndStore(context.Background(), url, "tag", ProviderOpenLibraryL, rec)
	assert.Equal(t, provenance.OutcomeSkippedKnownBad, outcome)
	assert.Equal(t, 1, fetcher.calls)
}

func TestFetchErrorOutcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want provenance.Outcome
	}{
		{"not found", ErrNotFound, provenance.OutcomeNotFound},
		{"empty body", ErrEmptyBody, provenance.OutcomeEmpty},
		{"deadline", context.DeadlineExceeded, provenance.OutcomeTimeout},
		{"other", errors.New("connection reset"), provenance.OutcomeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
				return nil, tt.err
			}}
			c, _ := newTestCache(t, fetcher)

			d, outcome := c.DownloadAndStore(context.Background(), "https://covers.example.com/x.jpg", "tag", ProviderGoogle, provenance.New("tag"))
			assert.Equal(t, tt.want, outcome)
			assert.True(t, d.IsPlaceholder())
		})
	}
}

func TestPlaceholderFingerprintScreen(t *testing.T) {
	// Serve the real Google Books "image not available" card; the cache
	// must refuse to store it.
	ref, err := asset.NewManager().GetRawImage("reference/google-books-no-cover.png")
	require.NoError(t, err)

	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return ref, nil
	}}
	c, store := newTestCache(t, fetcher)
	rec := provenance.New("tag")

	url := "https://books.google.com/books/content?id=x&printsec=frontcover"
	d, outcome := c.DownloadAndStore(context.Background(), url, "tag", ProviderGoogle, rec)
	assert.Equal(t, provenance.OutcomePlaceholderMatch, outcome)
	assert.True(t, d.IsPlaceholder())
	assert.True(t, store.IsBadURL(url))
	assert.True(t, DefinitiveMiss(outcome))

	// Nothing was written.
	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUndecodableBodyOutcome(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return []byte("<html>not an image</html>"), nil
	}}
	c, store := newTestCache(t, fetcher)

	url := "https://covers.example.com/broken.jpg"
	d, outcome := c.DownloadAndStore(context.Background(), url, "tag", ProviderGoogle, provenance.New("tag"))
	assert.Equal(t, provenance.OutcomeProcessing, outcome)
	assert.True(t, d.IsPlaceholder())
	assert.True(t, store.IsBadURL(url), "a body that never decodes is bad for good")
}

func TestTinyImageOutcome(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return testJPEG(t, 30, 40), nil
	}}
	c, _ := newTestCache(t, fetcher)

	_, outcome := c.DownloadAndStore(context.Background(), "https://covers.example.com/tiny.jpg", "tag", ProviderGoogle, provenance.New("tag"))
	assert.Equal(t, provenance.OutcomeProcessing, outcome)
	assert.True(t, DefinitiveMiss(outcome))
}

func TestDownloadNormalizesWideImages(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return testPNG(t, 1600, 2400), nil
	}}
	c, _ := newTestCache(t, fetcher)

	// The file name keeps the URL's extension even though the stored
	// bytes are canonical JPEG.
	d, outcome := c.DownloadAndStore(context.Background(), "https://covers.example.com/wide.png", "tag", ProviderLongitood, provenance.New("tag"))
	require.Equal(t, provenance.OutcomeSuccess, outcome)
	assert.Equal(t, 800, d.Width)
	assert.Equal(t, 1200, d.Height)
	assert.True(t, strings.HasSuffix(d.Location, ".png"))

	stored, err := c.ReadFile(d.Location)
	require.NoError(t, err)
	w, h := decodeDimsFromBytes(t, stored)
	assert.Equal(t, 800, w)
	assert.Equal(t, 1200, h)
}

func TestDisabledCacheDegrades(t *testing.T) {
	fetcher := &fakeFetcher{fetch: func(ctx context.Context, url string) ([]byte, error) {
		return testJPEG(t, 400, 600), nil
	}}
	cfg := &config.Config{Cache: config.CacheConfig{
		Enabled: false,
		Dir:     filepath.Join(t.TempDir(), "book-covers"),
	}}
	c := NewDiskCache(cfg, fetcher, NewStore(), NewNormalizer(), NewPlaceholderRegistry(asset.NewManager()))
	require.False(t, c.Enabled())

	rec := provenance.New("tag")
	d, outcome := c.DownloadAndStore(context.Background(), "https://covers.example.com/a.jpg", "tag", ProviderGoogle, rec)
	assert.Equal(t, provenance.OutcomeGeneric, outcome)
	assert.True(t, d.IsPlaceholder())
	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, 1, rec.AttemptCount())
}

func TestDefinitiveMiss(t *testing.T) {
	misses := []provenance.Outcome{
		provenance.OutcomeNotFound,
		provenance.OutcomeEmpty,
		provenance.OutcomePlaceholderMatch,
		provenance.OutcomeProcessing,
		provenance.OutcomeContentRejected,
	}
	for _, o := range misses {
		assert.True(t, DefinitiveMiss(o), string(o))
	}

	transient := []provenance.Outcome{
		provenance.OutcomeSuccess,
		provenance.OutcomeSkippedKnownBad,
		provenance.OutcomeTimeout,
		provenance.OutcomeIo,
		provenance.OutcomeGeneric,
	}
	for _, o := range transient {
		assert.False(t, DefinitiveMiss(o), string(o))
	}
}

func TestLocationMapping(t *testing.T) {
	c, _ := newTestCache(t, &fakeFetcher{})

	assert.Equal(t, "/book-covers/", c.RoutePrefix())
	assert.True(t, c.IsCachedLocation("/book-covers/abc.jpg"))
	assert.False(t, c.IsCachedLocation("https://example.com/book-covers/abc.jpg"))
	assert.False(t, c.IsCachedLocation(PlaceholderPath))

	p, ok := c.FilePathFor("/book-covers/abc.jpg")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(c.Dir(), "abc.jpg"), p)

	// Traversal shapes never map to a path.
	_, ok = c.FilePathFor("/book-covers/")
	assert.False(t, ok)
	_, ok = c.FilePathFor("/book-covers/../secrets")
	assert.False(t, ok)

	_, err := c.ReadFile("/elsewhere/abc.jpg")
	assert.Error(t, err)
}
