package objectstore

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient answers HEAD via the head func (nil means NotFound) and
// records every PUT.
type fakeClient struct {
	mu     sync.Mutex
	heads  int
	puts   []*s3.PutObjectInput
	putErr error
	head   func(key string) (*s3.HeadObjectOutput, error)
}

func (f *fakeClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	f.heads++
	f.mu.Unlock()
	if f.head == nil {
		return nil, &s3types.NotFound{}
	}
	return f.head(aws.ToString(in.Key))
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) headCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads
}

func newTestGateway(client Client, opts ...func(*Options)) *Gateway {
	o := Options{Bucket: "covers", CDNURL: "https://cdn.example.com"}
	for _, fn := range opts {
		fn(&o)
	}
	return NewWithClient(client, o)
}

func presentHead(size int64, w, h string) func(string) (*s3.HeadObjectOutput, error) {
	return func(string) (*s3.HeadObjectOutput, error) {
		return &s3.HeadObjectOutput{
			ContentLength: aws.Int64(size),
			Metadata:      map[string]string{"width": w, "height": h},
		}, nil
	}
}

func TestProbeReadsDimensionsFromMetadata(t *testing.T) {
	client := &fakeClient{head: presentHead(12345, "400", "600")}
	g := newTestGateway(client)

	info, ok := g.Probe(context.Background(), "9780306406157", ".jpg", "Google Books")
	require.True(t, ok)
	assert.Equal(t, "images/book-covers/9780306406157-lg-google-books.jpg", info.Key)
	assert.Equal(t, "https://cdn.example.com/images/book-covers/9780306406157-lg-google-books.jpg", info.PublicURL)
	assert.Equal(t, int64(12345), info.Size)
	assert.Equal(t, 400, info.Width)
	assert.Equal(t, 600, info.Height)
}

func TestProbeCachesAnswers(t *testing.T) {
	client := &fakeClient{head: presentHead(100, "400", "600")}
	g := newTestGateway(client)

	_, ok := g.Probe(context.Background(), "tag1", ".jpg", "Google Books")
	require.True(t, ok)
	_, ok = g.Probe(context.Background(), "tag1", ".jpg", "Google Books")
	require.True(t, ok)

	assert.Equal(t, 1, client.headCount(), "a fresh answer is served from cache")
	assert.Equal(t, 1, g.ProbeCacheLen())
}

func TestProbeCachesMisses(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client)

	_, ok := g.Probe(context.Background(), "tag1", ".jpg", "Google Books")
	assert.False(t, ok)
	_, ok = g.Probe(context.Background(), "tag1", ".jpg", "Google Books")
	assert.False(t, ok)

	assert.Equal(t, 1, client.headCount(), "a definitive miss is cached too")
}

func TestProbeServerFaultIsNotCached(t *testing.T) {
	client := &fakeClient{head: func(string) (*s3.HeadObjectOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "InternalError", Message: "backend sneezed", Fault: smithy.FaultServer}
	}}
	g := newTestGateway(client)

	_, ok := g.Probe(context.Background(), "tag1", ".jpg", "Google Books")
	assert.False(t, ok)
	_, ok = g.Probe(context.Background(), "tag1", ".jpg", "Google Books")
	assert.False(t, ok)

	assert.Equal(t, 2, client.headCount(), "server faults must stay retryable")
	assert.Equal(t, 0, g.ProbeCacheLen())
}

func TestProbeRejectsBadTags(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client)

	_, ok := g.Probe(context.Background(), "no/slashes", ".jpg", "Google Books")
	assert.False(t, ok)
	assert.Equal(t, 0, client.headCount())
}

func TestProbeAnyTriesSlugsInOrder(t *testing.T) {
	hit := "images/book-covers/tag1-lg-longitood.jpg"
	client := &fakeClient{head: func(key string) (*s3.HeadObjectOutput, error) {
		if key == hit {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(64)}, nil
		}
		return nil, &s3types.NotFound{}
	}}
	g := newTestGateway(client)

	info, ok := g.ProbeAny(context.Background(), "tag1", ".jpg")
	require.True(t, ok)
	assert.Equal(t, hit, info.Key)
	// google-books and open-library miss first.
	assert.Equal(t, 3, client.headCount())
}

func TestUploadPutsObjectWithMetadata(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client)

	body := []byte("jpeg bytes")
	info, err := g.Upload(context.Background(), UploadInput{
		Bytes:      body,
		Ext:        ".jpg",
		MIME:       "image/jpeg",
		Width:      400,
		Height:     600,
		BookTag:    "9780306406157",
		SourceName: "Google Books",
	})
	require.NoError(t, err)

	wantKey := "images/book-covers/9780306406157-lg-google-books.jpg"
	assert.Equal(t, wantKey, info.Key)
	assert.Equal(t, "https://cdn.example.com/"+wantKey, info.PublicURL)
	assert.Equal(t, int64(len(body)), info.Size)

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "covers", aws.ToString(put.Bucket))
	assert.Equal(t, wantKey, aws.ToString(put.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(put.ContentType))
	assert.Equal(t, int64(len(body)), aws.ToInt64(put.ContentLength))
	assert.Equal(t, s3types.ObjectCannedACLPublicRead, put.ACL)
	assert.Equal(t, "400", put.Metadata["width"])
	assert.Equal(t, "600", put.Metadata["height"])

	// The upload primes the probe cache; the next probe needs no HEAD.
	heads := client.headCount()
	_, ok := g.Probe(context.Background(), "9780306406157", ".jpg", "Google Books")
	assert.True(t, ok)
	assert.Equal(t, heads, client.headCount())
}

func TestUploadShortCircuitsOnMatchingSize(t *testing.T) {
	body := []byte("jpeg bytes")
	client := &fakeClient{head: presentHead(int64(len(body)), "400", "600")}
	g := newTestGateway(client)

	info, err := g.Upload(context.Background(), UploadInput{
		Bytes:      body,
		Ext:        ".jpg",
		MIME:       "image/jpeg",
		Width:      400,
		Height:     600,
		BookTag:    "tag1",
		SourceName: "Google Books",
	})
	require.NoError(t, err)
	assert.Empty(t, client.puts, "matching size means no re-upload")
	assert.Equal(t, int64(len(body)), info.Size)
}

func TestUploadReplacesOnSizeMismatch(t *testing.T) {
	client := &fakeClient{head: presentHead(999, "400", "600")}
	g := newTestGateway(client)

	_, err := g.Upload(context.Background(), UploadInput{
		Bytes:      []byte("new jpeg bytes"),
		Ext:        ".jpg",
		MIME:       "image/jpeg",
		BookTag:    "tag1",
		SourceName: "Google Books",
	})
	require.NoError(t, err)
	assert.Len(t, client.puts, 1)
}

func TestUploadEnforcesSizeCeiling(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client, func(o *Options) { o.MaxBytes = 8 })

	_, err := g.Upload(context.Background(), UploadInput{
		Bytes:      []byte("way too many bytes"),
		Ext:        ".jpg",
		BookTag:    "tag1",
		SourceName: "Google Books",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds ceiling")
	assert.Empty(t, client.puts)
	assert.Equal(t, 0, client.headCount())
}

func TestUploadRejectsBadTag(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client)

	_, err := g.Upload(context.Background(), UploadInput{
		Bytes:      []byte("x"),
		Ext:        ".jpg",
		BookTag:    "no/slashes",
		SourceName: "Google Books",
	})
	assert.ErrorIs(t, err, ErrBadBookTag)
}

func TestUploadWritesProvenanceSideDocInDebug(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client, func(o *Options) {
		o.ProvenanceDebug = func() bool { return true }
	})

	doc := []byte(`{"attempts":[]}`)
	_, err := g.Upload(context.Background(), UploadInput{
		Bytes:      []byte("jpeg bytes"),
		Ext:        ".jpg",
		MIME:       "image/jpeg",
		BookTag:    "tag1",
		SourceName: "Google Books",
		Provenance: doc,
	})
	require.NoError(t, err)

	require.Len(t, client.puts, 2)
	side := client.puts[1]
	assert.Equal(t, "images/provenance-data/tag1-lg-google-books.jpg.txt", aws.ToString(side.Key))
	assert.Equal(t, "text/plain", aws.ToString(side.ContentType))
	assert.Empty(t, side.ACL, "the side-doc is not public")
}

func TestUploadSkipsProvenanceByDefault(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client)

	_, err := g.Upload(context.Background(), UploadInput{
		Bytes:      []byte("jpeg bytes"),
		Ext:        ".jpg",
		BookTag:    "tag1",
		SourceName: "Google Books",
		Provenance: []byte("{}"),
	})
	require.NoError(t, err)
	assert.Len(t, client.puts, 1)
}

func TestPublicURLPrefersPublicCDN(t *testing.T) {
	g := newTestGateway(&fakeClient{}, func(o *Options) {
		o.PublicCDNURL = "https://public.example.com"
	})
	assert.Equal(t, "https://public.example.com/k.jpg", g.PublicURL("k.jpg"))

	g2 := newTestGateway(&fakeClient{})
	assert.Equal(t, "https://cdn.example.com/k.jpg", g2.PublicURL("k.jpg"))
}
