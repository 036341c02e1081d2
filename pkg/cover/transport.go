package cover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/util/log"
)

// maxDownloadBytes caps how much of a response body is read into memory.
// No real cover comes close; a misbehaving endpoint should not be able to
// exhaust the process.
const maxDownloadBytes = 32 << 20

// Fetch failure sentinels the downloader maps onto provenance outcomes.
var (
	ErrNotFound  = errors.New("resource not found")
	ErrEmptyBody = errors.New("empty response body")
)

// StatusError reports a non-2xx response that is not a plain 404.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Status, e.URL)
}

// Fetcher is the one network dependency of the download path. Implemented
// by HTTPFetcher in production and by fakes in tests.
type Fetcher interface {
	// FetchBytes downloads the URL and returns the body. It returns
	// ErrNotFound for 404, ErrEmptyBody for 2xx with no content, and a
	// StatusError for other non-2xx responses.
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// UserAgentTransport wraps an http.RoundTripper and adds a User-Agent header.
type UserAgentTransport struct {
	http.RoundTripper
	UserAgent string
}

// RoundTrip executes a single HTTP transaction, adding the User-Agent header.
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set("User-Agent", t.UserAgent)
	return t.RoundTripper.RoundTrip(clonedReq)
}

// HTTPFetcher downloads cover bytes with retries on transient faults.
type HTTPFetcher struct {
	client *retryablehttp.Client
}

// NewHTTPFetcher builds the production fetcher: retrying client over a
// transport with explicit dial and handshake deadlines.
func NewHTTPFetcher() *HTTPFetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = retryLogger{}
	rc.HTTPClient = &http.Client{
		Transport: &UserAgentTransport{
			RoundTripper: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   HTTPClientDialerTimeout,
					KeepAlive: HTTPClientKeepAlive,
				}).DialContext,
				ResponseHeaderTimeout: HTTPClientResponseHeaderTimeout,
				TLSHandshakeTimeout:   HTTPClientTLSHandshakeTimeout,
			},
			UserAgent: config.AppName + "/" + config.AppVersion,
		},
	}
	return &HTTPFetcher{client: rc}
}

// NewHTTPFetcherWithClient builds a fetcher over a caller-supplied
// standard client. Tests use it to point at httptest servers.
func NewHTTPFetcherWithClient(hc *http.Client) *HTTPFetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = retryLogger{}
	rc.HTTPClient = hc
	return &HTTPFetcher{client: rc}
}

// FetchBytes implements Fetcher.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// retryLogger adapts the retrying client's leveled logger onto the app
// logger, keeping retry chatter at debug.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Errorf("http: %s %v", msg, keysAndValues)
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warnf("http: %s %v", msg, keysAndValues)
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debugf("http: %s %v", msg, keysAndValues)
}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debugf("http: %s %v", msg, keysAndValues)
}
