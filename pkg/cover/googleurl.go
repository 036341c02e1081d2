package cover

import "strings"

// Google Books image URLs come back littered with viewer parameters that
// either shrink the image (zoom, fife) or deliver a page-curl rendering
// instead of the cover. The rewrites below are plain string surgery so the
// surviving parameters keep their original order.

// EnhanceGoogleURL applies the full set of rewrites used before
// downloading a Google image: https upgrade, zoom pinned to 0, fife and
// edge=curl stripped, trailing separators trimmed.
func EnhanceGoogleURL(raw string) string {
	return rewriteGoogleURL(raw, true)
}

// enhanceGoogleKeepZoom rewrites like EnhanceGoogleURL but preserves the
// original zoom, for probing whether the supplied variant is larger.
func enhanceGoogleKeepZoom(raw string) string {
	return rewriteGoogleURL(raw, false)
}

func rewriteGoogleURL(raw string, zoomZero bool) string {
	u := raw
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}

	i := strings.IndexByte(u, '?')
	if i < 0 {
		return strings.TrimRight(u, "?&")
	}
	base, query := u[:i], u[i+1:]

	var kept []string
	for _, p := range strings.Split(query, "&") {
		switch {
		case p == "":
			continue
		case strings.HasPrefix(p, "fife=w"):
			continue
		case p == "edge=curl":
			continue
		}
		if zoomZero && strings.HasPrefix(p, "zoom=") {
			p = "zoom=0"
		}
		kept = append(kept, p)
	}

	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}

// LikelyGoogleCover reports whether a Google image URL plausibly renders
// the front cover. Any pg= page selector or edge=curl rendering
// disqualifies it; printsec=frontcover is a strong positive but its
// absence is fine.
func LikelyGoogleCover(rawURL string) bool {
	query := rawURL
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		query = rawURL[i+1:]
	} else {
		query = ""
	}
	for _, p := range strings.Split(query, "&") {
		if strings.HasPrefix(p, "pg=") || p == "edge=curl" {
			return false
		}
	}
	return true
}

// googleHintVariants expands a Google hint URL into the download
// candidates worth trying: the enhanced URL with its zoom kept, and the
// enhanced URL with zoom pinned to 0. Variants that fail the cover filter
// or collapse to the same string are dropped.
func googleHintVariants(raw string) []string {
	variants := make([]string, 0, 2)
	for _, u := range []string{enhanceGoogleKeepZoom(raw), EnhanceGoogleURL(raw)} {
		if !LikelyGoogleCover(u) {
			continue
		}
		dup := false
		for _, seen := range variants {
			if seen == u {
				dup = true
				break
			}
		}
		if !dup {
			variants = append(variants, u)
		}
	}
	return variants
}
