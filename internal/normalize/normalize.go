package normalize

import "strings"

// okina is the Hawaiian glottal stop (U+02BB). The upstream weather API only
// knows town names spelled with an ASCII apostrophe, so community keys and
// API keys must agree on one form.
const okina = "ʻ"

// Location canonicalizes a town name for use as a storage key and upstream
// query: trim surrounding whitespace, map the okina to an apostrophe, then
// lowercase. Applied at every ingress point (vote submission, cache
// reads/writes, upvote/select, resolution, external fetch).
func Location(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, okina, "'")
	return strings.ToLower(s)
}
