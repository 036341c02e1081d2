// Package objectstore is the gateway to the S3-compatible bucket holding
// processed covers. It owns the key schema, a bounded probe cache over
// HEAD results, and the idempotent upload path.
package objectstore

import (
	"errors"
	"regexp"
	"strings"
)

const (
	coverPrefix      = "images/book-covers/"
	provenancePrefix = "images/provenance-data/"
)

// ErrBadBookTag rejects book tags that would make unsafe object keys.
var ErrBadBookTag = errors.New("book tag must match [A-Za-z0-9_-]+")

var bookTagRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// keyExts is the allowed set of key extensions; anything else becomes .jpg.
var keyExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
}

// probeSlugs is the order ProbeAny tries source slugs in.
var probeSlugs = []string{"google-books", "open-library", "longitood", "local-cache", "unknown"}

// SlugifySource lowercases a source name and collapses everything outside
// [a-z0-9_-] to a dash.
func SlugifySource(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// NormalizeExt forces a leading-dot lowercase extension from the allowed
// set, defaulting to .jpg.
func NormalizeExt(ext string) string {
	e := strings.ToLower(strings.TrimSpace(ext))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	if _, ok := keyExts[e]; !ok {
		return ".jpg"
	}
	return e
}

// DeriveKey composes the exact object key for a processed cover.
func DeriveKey(bookTag, ext, sourceName string) (string, error) {
	return keyFromSlug(bookTag, SlugifySource(sourceName), ext)
}

func keyFromSlug(bookTag, slug, ext string) (string, error) {
	if !bookTagRe.MatchString(bookTag) {
		return "", ErrBadBookTag
	}
	return coverPrefix + bookTag + "-lg-" + slug + NormalizeExt(ext), nil
}

// coverFilename returns the file name part of a cover key.
func coverFilename(key string) string {
	return strings.TrimPrefix(key, coverPrefix)
}

// provenanceKey is where the provenance side-document for a cover lives.
func provenanceKey(coverKey string) string {
	return provenancePrefix + coverFilename(coverKey) + ".txt"
}
