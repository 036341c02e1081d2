package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedCoverServing(t *testing.T) {
	s := newTestServer(t, nil)

	dir := s.svc.CacheDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	payload := []byte("\xff\xd8\xff\xe0not-really-a-jpeg")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.jpg"), payload, 0o644))

	req := httptest.NewRequest(http.MethodGet, s.svc.CacheRoutePrefix()+"abc.jpg", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, payload, rr.Body.Bytes())
}

func TestCachedCoverMissingFile(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, s.svc.CacheRoutePrefix()+"nope.jpg", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCachedCoverRejectsPost(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, s.svc.CacheRoutePrefix()+"abc.jpg", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCachedCoverRejectsTraversal(t *testing.T) {
	s := newTestServer(t, nil)

	// The handler is called directly: the router canonicalizes dot
	// segments away before a handler sees them, but the handler must not
	// rely on that.
	for _, name := range []string{
		"",
		"a/b.jpg",
		`..\secret.jpg`,
		"..",
		"../../etc/passwd",
	} {
		req := httptest.NewRequest(http.MethodGet, "/book-covers/x", nil)
		req.URL.Path = s.svc.CacheRoutePrefix() + name
		rr := httptest.NewRecorder()
		s.handleCachedCover(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "name %q should be rejected", name)
	}
}
