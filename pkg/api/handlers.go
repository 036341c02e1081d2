package api

import (
	"encoding/json"
	"net/http"

	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/cover"
	"github.com/pagebound/jacket/util/log"
)

// resolveRequest is the book record as the catalog sends it.
type resolveRequest struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ISBN13   string `json:"isbn13"`
	ISBN10   string `json:"isbn10"`
	CoverURL string `json:"cover_url"`
}

// resolveResponse mirrors cover.URLs.
type resolveResponse struct {
	Preferred string `json:"preferred"`
	Fallback  string `json:"fallback"`
	Provider  string `json:"provider"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "running",
		"version": config.AppVersion,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleResolve answers with the immediately displayable URLs for a book
// and schedules convergence in the background.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	book := cover.Book{
		ID:       req.ID,
		Title:    req.Title,
		ISBN13:   req.ISBN13,
		ISBN10:   req.ISBN10,
		CoverURL: req.CoverURL,
	}
	if book.Fingerprint() == "" {
		http.Error(w, "Book needs an isbn or an id", http.StatusBadRequest)
		return
	}

	urls := s.svc.InitialCover(r.Context(), book)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resolveResponse{
		Preferred: urls.Preferred,
		Fallback:  urls.Fallback,
		Provider:  urls.Provider.String(),
	}); err != nil {
		log.Printf("Failed to write resolve response: %v", err)
	}
}

// handlePlaceholder serves the bundled placeholder image.
func (s *Server) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	svg, err := s.assets.PlaceholderSVG()
	if err != nil {
		http.Error(w, "Placeholder unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(svg)
}
