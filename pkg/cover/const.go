package cover

import "time"

// PlaceholderPath is the app-relative location of the bundled placeholder
// cover, served by the daemon and embedded via the asset manager.
const PlaceholderPath = "/images/placeholder-book-cover.svg"

// Image acceptance and normalization bounds
const (
	// MinAcceptablePx rejects thumbnails; anything smaller on either side
	// is worthless as a cover.
	MinAcceptablePx = 50

	// NoUpscaleWidthPx is the width at or below which an image is kept at
	// its original dimensions. Upscaling never happens.
	NoUpscaleWidthPx = 300

	// TargetWidthPx is the width images wider than it are scaled down to,
	// preserving aspect ratio.
	TargetWidthPx = 800

	// JPEGQuality is the re-encode quality for normalized covers.
	JPEGQuality = 85
)

// Pipeline tuning
const (
	// hintMinDimensionPx is the floor for non-Google hint downloads; a
	// hint below it cannot be trusted to beat the provider fan-out.
	hintMinDimensionPx = 200

	// storePreferredMinPx is the dimension above which an object-store
	// candidate outranks everything else during selection.
	storePreferredMinPx = 150

	// indexCapacity bounds each of the in-memory indexes.
	indexCapacity = 1000

	// convergeWorkers is the number of background convergence goroutines.
	convergeWorkers = 4

	// convergeQueueSize bounds the pending convergence queue; submits
	// beyond it are dropped rather than blocking the caller.
	convergeQueueSize = 256

	// cleanupInterval is how often expired cache files are swept.
	cleanupInterval = 24 * time.Hour
)

// Provider identifies where a cover artifact came from.
type Provider int

// Provider constants
const (
	ProviderUnknown Provider = iota
	ProviderObjectStore
	ProviderGoogle
	ProviderOpenLibraryL
	ProviderOpenLibraryM
	ProviderOpenLibraryS
	ProviderLongitood
	ProviderHint
	ProviderLocalCache
	ProviderPlaceholder
)

// String returns the display name of a Provider, as logged in provenance
// attempts and carried on events.
func (p Provider) String() string {
	switch p {
	case ProviderObjectStore:
		return "Object Store"
	case ProviderGoogle:
		return "Google Books"
	case ProviderOpenLibraryL:
		return "Open Library (L)"
	case ProviderOpenLibraryM:
		return "Open Library (M)"
	case ProviderOpenLibraryS:
		return "Open Library (S)"
	case ProviderLongitood:
		return "Longitood"
	case ProviderHint:
		return "Provisional Hint"
	case ProviderLocalCache:
		return "Local Cache"
	case ProviderPlaceholder:
		return "Placeholder"
	default:
		return "Unknown"
	}
}

// CanonicalSourceName collapses size variants to the name object-store
// key slugs are derived from.
func (p Provider) CanonicalSourceName() string {
	switch p {
	case ProviderObjectStore:
		return "Object Store"
	case ProviderGoogle:
		return "Google Books"
	case ProviderOpenLibraryL, ProviderOpenLibraryM, ProviderOpenLibraryS:
		return "Open Library"
	case ProviderLongitood:
		return "Longitood"
	case ProviderLocalCache:
		return "Local Cache"
	default:
		return "Unknown"
	}
}

// rank orders providers for winner selection; lower wins ties.
func (p Provider) rank() int {
	switch p {
	case ProviderObjectStore:
		return 0
	case ProviderGoogle:
		return 1
	case ProviderOpenLibraryL, ProviderOpenLibraryM, ProviderOpenLibraryS:
		return 2
	case ProviderLongitood:
		return 3
	case ProviderLocalCache:
		return 4
	default:
		return 5
	}
}

// Storage says where a descriptor's bytes live.
type Storage int

// Storage constants
const (
	StorageUnknown Storage = iota
	StorageLocal
	StorageObjectStore
	StorageRemote
	StoragePlaceholder
)

// String returns the storage-location label used in provenance records.
func (s Storage) String() string {
	switch s {
	case StorageLocal:
		return "local-cache"
	case StorageObjectStore:
		return "object-store"
	case StorageRemote:
		return "remote"
	case StoragePlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// NetworkTimeouts defines the standard durations for cover downloads.
const (
	// DownloadTimeout is the per-request deadline for fetching one image.
	DownloadTimeout = 10 * time.Second

	// HTTPClientDialerTimeout is the timeout for establishing a TCP
	// connection to a provider.
	HTTPClientDialerTimeout = 5 * time.Second

	// HTTPClientTLSHandshakeTimeout is the time limit for the TLS
	// handshake for HTTPS.
	HTTPClientTLSHandshakeTimeout = 5 * time.Second

	// HTTPClientResponseHeaderTimeout is the time limit for receiving
	// response headers after the request has been sent.
	HTTPClientResponseHeaderTimeout = 8 * time.Second

	// HTTPClientKeepAlive is the duration for TCP keep-alive probes on
	// pooled provider connections.
	HTTPClientKeepAlive = 30 * time.Second
)
