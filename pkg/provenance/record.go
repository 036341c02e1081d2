// Package provenance keeps an ordered, per-request log of every cover
// source that was attempted and the artifact that was finally selected.
// Records are shared across the parallel source fetches of one resolution,
// so all mutation goes through the mutex.
package provenance

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies the result of a single source attempt.
type Outcome string

// Attempt outcomes. Every failure mode a source can produce maps onto
// exactly one of these; they are serialized as-is in the debug upload.
const (
	OutcomePending          Outcome = "pending"
	OutcomeSuccess          Outcome = "success"
	OutcomeSkippedKnownBad  Outcome = "skipped-known-bad"
	OutcomeNotFound         Outcome = "failure-not-found"
	OutcomeEmpty            Outcome = "failure-empty"
	OutcomePlaceholderMatch Outcome = "failure-placeholder-match"
	OutcomeProcessing       Outcome = "failure-processing"
	OutcomeContentRejected  Outcome = "failure-content-rejected"
	OutcomeIo               Outcome = "failure-io"
	OutcomeInvalidDetails   Outcome = "failure-invalid-details"
	OutcomeTimeout          Outcome = "failure-timeout"
	OutcomeGeneric          Outcome = "failure-generic"
)

// Attempt is one entry in the ordered attempt log.
type Attempt struct {
	Source          string    `json:"source"`
	Target          string    `json:"target,omitempty"`
	Outcome         Outcome   `json:"outcome"`
	Reason          string    `json:"reason,omitempty"`
	FetchedLocation string    `json:"fetched_location,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	At              time.Time `json:"at"`
}

// Selected describes the artifact the pipeline settled on.
type Selected struct {
	Source       string `json:"source"`
	Location     string `json:"location"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Reason       string `json:"reason,omitempty"`
	StorageLabel string `json:"storage,omitempty"`
	ObjectKey    string `json:"object_key,omitempty"`
}

// Record is the provenance log for a single cover resolution.
type Record struct {
	mu sync.Mutex

	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	StartedAt   time.Time `json:"started_at"`
	Attempts    []Attempt `json:"attempts"`
	Selection   *Selected `json:"selected,omitempty"`
}

// New creates an empty record for the given book fingerprint.
func New(fingerprint string) *Record {
	return &Record{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		StartedAt:   time.Now().UTC(),
	}
}

// Add appends one attempt to the log. The timestamp is filled in when the
// caller leaves it zero.
func (r *Record) Add(a Attempt) {
	if r == nil {
		return
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attempts = append(r.Attempts, a)
}

// Select records the chosen artifact. Only the first call takes effect.
func (r *Record) Select(s Selected) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Selection != nil {
		return
	}
	r.Selection = &s
}

// SelectedImage returns the recorded selection, or nil when none was made.
func (r *Record) SelectedImage() *Selected {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Selection == nil {
		return nil
	}
	s := *r.Selection
	return &s
}

// AttemptCount returns the number of attempts logged so far.
func (r *Record) AttemptCount() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Attempts)
}

// Snapshot returns a copy of the attempt log.
func (r *Record) Snapshot() []Attempt {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.Attempts))
	copy(out, r.Attempts)
	return out
}

// JSON serializes the record for the side upload next to the final image.
func (r *Record) JSON() ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil provenance record")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r, "", "  ")
}

// Summary renders a one-line digest for the convergence log.
func (r *Record) Summary() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sel := "none"
	if r.Selection != nil {
		sel = fmt.Sprintf("%s (%dx%d)", r.Selection.Source, r.Selection.Width, r.Selection.Height)
	}
	return fmt.Sprintf("fingerprint=%s attempts=%d selected=%s", r.Fingerprint, len(r.Attempts), sel)
}
