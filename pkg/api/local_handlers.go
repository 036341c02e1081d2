package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// handleCachedCover serves a file out of the local cover cache. Requests
// arrive with the same path the resolver hands out as a Local location,
// e.g. /book-covers/{filename}.
func (s *Server) handleCachedCover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, s.svc.CacheRoutePrefix())

	// Security: the filename must be a single path component with no traversal
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "\\") || strings.Contains(filename, "..") {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	if filepath.Base(filename) != filename {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	// Double-check containment using absolute, cleaned paths
	absRoot, err := filepath.Abs(s.svc.CacheDir())
	if err != nil {
		http.Error(w, "Invalid cache path", http.StatusInternalServerError)
		return
	}
	absRoot = filepath.Clean(absRoot)

	absFile, err := filepath.Abs(filepath.Join(absRoot, filename))
	if err != nil {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}
	absFile = filepath.Clean(absFile)

	prefix := absRoot
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	if !strings.HasPrefix(absFile, prefix) {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	http.ServeFile(w, r, absFile)
}
