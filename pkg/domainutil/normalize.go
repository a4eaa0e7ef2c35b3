package domainutil

import "strings"

// Normalize canonicalizes a raw domain, URL, or Referer value into a
// comparable authority token: the scheme and every leading "www." label are
// stripped, any path, query, or fragment is discarded, an explicit port is
// preserved, and the result is lower-cased. Unicode hostnames are kept as-is (no punycode
// conversion). The function never fails; garbage input is trimmed and
// lower-cased best effort. Normalize is idempotent.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "https://") {
		s = s[len("https://"):]
	} else if strings.HasPrefix(lower, "http://") {
		s = s[len("http://"):]
	}

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}

	s = strings.ToLower(s)
	for strings.HasPrefix(s, "www.") {
		s = s[len("www."):]
	}

	return strings.TrimSpace(s)
}
