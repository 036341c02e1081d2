package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/singleflight"

	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/util/log"
)

const (
	// probeTTL is how long a HEAD answer stays fresh.
	probeTTL = time.Hour

	// probeCacheCap bounds the probe cache; overflow sweeps expired
	// entries first and resets the cache only if that isn't enough.
	probeCacheCap = 2000
)

// Object user-metadata keys carrying pixel dimensions, written on upload
// and read back by probes.
const (
	metaWidth  = "width"
	metaHeight = "height"
)

// Client is the slice of the S3 API the gateway uses. *s3.Client
// satisfies it; tests substitute fakes.
type Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectInfo describes one stored cover object.
type ObjectInfo struct {
	Key       string
	PublicURL string
	Size      int64
	Width     int
	Height    int
}

// UploadInput carries a processed cover into the bucket.
type UploadInput struct {
	Bytes      []byte
	Ext        string
	MIME       string
	Width      int
	Height     int
	BookTag    string
	SourceName string // canonical provider name the key slug derives from
	Provenance []byte // optional provenance JSON for the debug side-doc
}

// Options configures a gateway over an existing client.
type Options struct {
	Bucket          string
	CDNURL          string
	PublicCDNURL    string
	MaxBytes        int64
	ProvenanceDebug func() bool
}

// Gateway talks to the bucket. All probe answers go through a bounded
// TTL cache; concurrent probes for one key collapse into a single HEAD.
type Gateway struct {
	client          Client
	bucket          string
	cdnURL          string
	publicCDNURL    string
	maxBytes        int64
	provenanceDebug func() bool

	group   singleflight.Group
	probeMu sync.Mutex
	probes  map[string]probeEntry
}

type probeEntry struct {
	present bool
	size    int64
	width   int
	height  int
	at      time.Time
}

// New builds the production gateway from configuration, including the
// S3 client with static credentials and an optional custom endpoint.
func New(cfg *config.Config) (*Gateway, error) {
	oc := cfg.ObjectStore
	if oc.Bucket == "" {
		return nil, errors.New("object store: bucket not configured")
	}
	if oc.CDNURL == "" && oc.PublicCDNURL == "" {
		return nil, errors.New("object store: no cdn url configured")
	}

	opts := s3.Options{
		Region:      oc.Region,
		Credentials: credentials.NewStaticCredentialsProvider(oc.AccessKeyID, oc.SecretAccessKey, ""),
	}
	if oc.Endpoint != "" {
		opts.BaseEndpoint = aws.String(oc.Endpoint)
	}

	return NewWithClient(s3.New(opts), Options{
		Bucket:          oc.Bucket,
		CDNURL:          oc.CDNURL,
		PublicCDNURL:    oc.PublicCDNURL,
		MaxBytes:        cfg.Cache.MaxFileSizeBytes,
		ProvenanceDebug: cfg.ProvenanceDebug,
	}), nil
}

// NewWithClient builds a gateway over a caller-supplied client.
func NewWithClient(client Client, opts Options) *Gateway {
	g := &Gateway{
		client:          client,
		bucket:          opts.Bucket,
		cdnURL:          opts.CDNURL,
		publicCDNURL:    opts.PublicCDNURL,
		maxBytes:        opts.MaxBytes,
		provenanceDebug: opts.ProvenanceDebug,
		probes:          make(map[string]probeEntry),
	}
	if g.provenanceDebug == nil {
		g.provenanceDebug = func() bool { return false }
	}
	return g
}

// PublicURL composes the displayable URL for a key, preferring the public
// CDN base over the direct one.
func (g *Gateway) PublicURL(key string) string {
	base := g.publicCDNURL
	if base == "" {
		base = g.cdnURL
	}
	return base + "/" + key
}

// Probe reports whether the cover for (bookTag, ext, sourceName) exists.
func (g *Gateway) Probe(ctx context.Context, bookTag, ext, sourceName string) (ObjectInfo, bool) {
	key, err := DeriveKey(bookTag, ext, sourceName)
	if err != nil {
		log.Warnf("object store: probe rejected tag %q: %v", bookTag, err)
		return ObjectInfo{}, false
	}
	return g.probeKey(ctx, key)
}

// ProbeAny tries every known source slug for a book tag and returns the
// first object found.
func (g *Gateway) ProbeAny(ctx context.Context, bookTag, ext string) (ObjectInfo, bool) {
	for _, slug := range probeSlugs {
		key, err := keyFromSlug(bookTag, slug, ext)
		if err != nil {
			log.Warnf("object store: probe rejected tag %q: %v", bookTag, err)
			return ObjectInfo{}, false
		}
		if info, ok := g.probeKey(ctx, key); ok {
			return info, true
		}
	}
	return ObjectInfo{}, false
}

func (g *Gateway) probeKey(ctx context.Context, key string) (ObjectInfo, bool) {
	e, err := g.head(ctx, key)
	if err != nil {
		log.Debugf("object store: head %s failed: %v", key, err)
		return ObjectInfo{}, false
	}
	if !e.present {
		return ObjectInfo{}, false
	}
	return ObjectInfo{
		Key:       key,
		PublicURL: g.PublicURL(key),
		Size:      e.size,
		Width:     e.width,
		Height:    e.height,
	}, true
}

// Upload stores a processed cover and returns its canonical info. When an
// object with matching size already exists, no PUT is issued. In debug
// mode the provenance JSON is stored alongside under the provenance
// prefix.
func (g *Gateway) Upload(ctx context.Context, in UploadInput) (ObjectInfo, error) {
	if g.maxBytes > 0 && int64(len(in.Bytes)) > g.maxBytes {
		return ObjectInfo{}, fmt.Errorf("object store: %d bytes exceeds ceiling %d", len(in.Bytes), g.maxBytes)
	}

	key, err := DeriveKey(in.BookTag, in.Ext, in.SourceName)
	if err != nil {
		return ObjectInfo{}, err
	}

	if e, herr := g.head(ctx, key); herr == nil && e.present && e.size == int64(len(in.Bytes)) {
		log.Debugf("object store: %s already present with matching size, skipping upload", key)
		return ObjectInfo{
			Key:       key,
			PublicURL: g.PublicURL(key),
			Size:      e.size,
			Width:     in.Width,
			Height:    in.Height,
		}, nil
	}

	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(in.Bytes),
		ContentType:   aws.String(in.MIME),
		ContentLength: aws.Int64(int64(len(in.Bytes))),
		ACL:           s3types.ObjectCannedACLPublicRead,
		Metadata: map[string]string{
			metaWidth:  strconv.Itoa(in.Width),
			metaHeight: strconv.Itoa(in.Height),
		},
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("object store: putting %s: %w", key, err)
	}

	g.cacheProbe(key, probeEntry{
		present: true,
		size:    int64(len(in.Bytes)),
		width:   in.Width,
		height:  in.Height,
		at:      time.Now(),
	})

	if g.provenanceDebug() && len(in.Provenance) > 0 {
		g.uploadProvenance(ctx, key, in.Provenance)
	}

	return ObjectInfo{
		Key:       key,
		PublicURL: g.PublicURL(key),
		Size:      int64(len(in.Bytes)),
		Width:     in.Width,
		Height:    in.Height,
	}, nil
}

// uploadProvenance stores the provenance side-doc. Best-effort: a failure
// is logged and never blocks the cover.
func (g *Gateway) uploadProvenance(ctx context.Context, coverKey string, doc []byte) {
	key := provenanceKey(coverKey)
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc),
		ContentType:   aws.String("text/plain"),
		ContentLength: aws.Int64(int64(len(doc))),
	})
	if err != nil {
		log.Warnf("object store: provenance side-doc %s failed: %v", key, err)
		return
	}
	log.Debugf("object store: wrote provenance side-doc %s", key)
}

// head resolves one key through the probe cache, collapsing concurrent
// misses into a single HEAD request.
func (g *Gateway) head(ctx context.Context, key string) (probeEntry, error) {
	g.probeMu.Lock()
	if e, ok := g.probes[key]; ok && time.Since(e.at) < probeTTL {
		g.probeMu.Unlock()
		return e, nil
	}
	g.probeMu.Unlock()

	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(g.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isDefinitiveMiss(err) {
				e := probeEntry{present: false, at: time.Now()}
				g.cacheProbe(key, e)
				return e, nil
			}
			// Transient fault: leave the cache alone so the next caller
			// retries.
			return probeEntry{}, err
		}

		e := probeEntry{present: true, at: time.Now()}
		if out.ContentLength != nil {
			e.size = *out.ContentLength
		}
		if w, convErr := strconv.Atoi(out.Metadata[metaWidth]); convErr == nil {
			e.width = w
		}
		if h, convErr := strconv.Atoi(out.Metadata[metaHeight]); convErr == nil {
			e.height = h
		}
		g.cacheProbe(key, e)
		return e, nil
	})
	if err != nil {
		return probeEntry{}, err
	}
	return v.(probeEntry), nil
}

// isDefinitiveMiss reports whether a HEAD error means "not there" rather
// than "could not ask".
func isDefinitiveMiss(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() != smithy.FaultServer
	}
	return false
}

func (g *Gateway) cacheProbe(key string, e probeEntry) {
	g.probeMu.Lock()
	defer g.probeMu.Unlock()

	if _, ok := g.probes[key]; !ok && len(g.probes) >= probeCacheCap {
		now := time.Now()
		for k, v := range g.probes {
			if now.Sub(v.at) >= probeTTL {
				delete(g.probes, k)
			}
		}
		if len(g.probes) >= probeCacheCap {
			log.Warnf("object store: probe cache full, dropping %d entries", len(g.probes))
			g.probes = make(map[string]probeEntry)
		}
	}
	g.probes[key] = e
}

// ProbeCacheLen returns the probe cache size.
func (g *Gateway) ProbeCacheLen() int {
	g.probeMu.Lock()
	defer g.probeMu.Unlock()
	return len(g.probes)
}
