package cover

import "strings"

// Book carries the catalog fields the cover pipeline reads. Everything is
// optional except that a book without any identifier cannot be resolved.
type Book struct {
	ID       string // provider volume id (e.g. a Google Books volume)
	Title    string
	ISBN13   string
	ISBN10   string
	CoverURL string      // provider-supplied cover URL carried on the record
	Cover    *Descriptor // resolved descriptor from a catalog tier, if any
}

// Fingerprint returns the identity the indexes are keyed by: ISBN-13
// first, then ISBN-10, then the volume id. Empty when the book has no
// usable identifier.
func (b Book) Fingerprint() string {
	if isbn := normalizeISBN(b.ISBN13); isbn != "" {
		return isbn
	}
	if isbn := normalizeISBN(b.ISBN10); isbn != "" {
		return isbn
	}
	return strings.TrimSpace(b.ID)
}

// ISBN returns the book's preferred ISBN, normalized, or empty.
func (b Book) ISBN() string {
	if isbn := normalizeISBN(b.ISBN13); isbn != "" {
		return isbn
	}
	return normalizeISBN(b.ISBN10)
}

// normalizeISBN strips the separators ISBNs are commonly printed with.
func normalizeISBN(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == '-' || r == ' ' {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Descriptor locates one cover artifact. It is a value; copies are cheap
// and nothing owns it.
type Descriptor struct {
	Location    string // URL or app-relative path, depending on Storage
	Storage     Storage
	Provider    Provider
	ArtifactID  string // opaque provider artifact id, when known
	Width       int
	Height      int
	ContentHash string // hex SHA-256 of the stored bytes, when known
}

// Valid reports whether the descriptor points at a usable, measured image.
func (d Descriptor) Valid() bool {
	return d.Location != "" && d.Location != PlaceholderPath && d.Width > 1 && d.Height > 1
}

// IsPlaceholder reports whether the descriptor is the bundled placeholder.
func (d Descriptor) IsPlaceholder() bool {
	return d.Storage == StoragePlaceholder || d.Location == PlaceholderPath
}

// area is the selection metric; larger covers win.
func (d Descriptor) area() int {
	return d.Width * d.Height
}

// class buckets descriptors for selection: an object-store artifact with
// real dimensions beats everything else regardless of size.
func (d Descriptor) class() int {
	if d.Storage == StorageObjectStore && d.Width > storePreferredMinPx && d.Height > storePreferredMinPx {
		return 0
	}
	return 1
}

// betterThan reports whether d strictly precedes o in selection order:
// class, then larger area, then provider rank.
func (d Descriptor) betterThan(o Descriptor) bool {
	if d.class() != o.class() {
		return d.class() < o.class()
	}
	if d.area() != o.area() {
		return d.area() > o.area()
	}
	return d.Provider.rank() < o.Provider.rank()
}

// PlaceholderDescriptor returns the descriptor every failure path
// degrades to.
func PlaceholderDescriptor() Descriptor {
	return Descriptor{
		Location: PlaceholderPath,
		Storage:  StoragePlaceholder,
		Provider: ProviderPlaceholder,
	}
}

// URLs is the synchronous answer handed to callers: a URL that is always
// displayable plus the best fallback.
type URLs struct {
	Preferred string
	Fallback  string
	Provider  Provider
}

// InferProvider classifies a URL by the service that serves it. The CDN
// bases come from configuration so object-store locations are recognized
// whatever the bucket is called.
func InferProvider(rawURL, cdnURL, publicCDNURL string) Provider {
	switch {
	case rawURL == "":
		return ProviderUnknown
	case rawURL == PlaceholderPath:
		return ProviderPlaceholder
	case strings.Contains(rawURL, "googleapis.com/books"),
		strings.Contains(rawURL, "books.google.com/books"):
		return ProviderGoogle
	case strings.Contains(rawURL, "openlibrary.org"):
		return openLibraryTier(rawURL)
	case strings.Contains(rawURL, "longitood.com"):
		return ProviderLongitood
	case cdnURL != "" && strings.Contains(rawURL, cdnURL),
		publicCDNURL != "" && strings.Contains(rawURL, publicCDNURL),
		strings.Contains(rawURL, "digitaloceanspaces.com"),
		strings.Contains(rawURL, "s3.amazonaws.com"):
		return ProviderObjectStore
	default:
		return ProviderUnknown
	}
}

// openLibraryTier reads the size suffix Open Library encodes in its cover
// filenames ("...-M.jpg"). Without one, assume the large tier.
func openLibraryTier(rawURL string) Provider {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		rawURL = rawURL[:i]
	}
	switch {
	case strings.Contains(rawURL, "-S."):
		return ProviderOpenLibraryS
	case strings.Contains(rawURL, "-M."):
		return ProviderOpenLibraryM
	default:
		return ProviderOpenLibraryL
	}
}
