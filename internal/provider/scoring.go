package provider

import (
	"sort"
	"strings"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
)

// scoreHit implements the local search-scoring heuristic from §4.3, used
// by any variant whose upstream search endpoint doesn't return its own
// relevance score.
func scoreHit(query, symbol, name string) float64 {
	q := strings.ToUpper(strings.TrimSpace(query))
	sym := strings.ToUpper(symbol)
	nameUpper := strings.ToUpper(name)

	var score float64
	switch {
	case sym == q:
		score += 100
	case strings.HasPrefix(sym, q):
		score += 80
	case strings.Contains(sym, q):
		score += 50
	}

	switch {
	case nameUpper == q:
		score += 90
	case strings.HasPrefix(nameUpper, q):
		score += 60
	case containsWordBoundary(nameUpper, q):
		score += 40
	case strings.Contains(nameUpper, q):
		score += 20
	}

	if len(sym) <= 5 {
		score += 10
	}
	return score
}

// containsWordBoundary reports whether q appears in s at the start of a
// word (preceded by start-of-string or a non-alphanumeric rune).
func containsWordBoundary(s, q string) bool {
	if q == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(s[idx:], q)
		if i < 0 {
			return false
		}
		pos := idx + i
		if pos == 0 || !isAlnum(rune(s[pos-1])) {
			return true
		}
		idx = pos + 1
		if idx >= len(s) {
			return false
		}
	}
}

func isAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// rankHits sorts candidates by score desc, then symbol asc, and truncates
// to limit.
func rankHits(hits []domain.SearchHit, limit int) []domain.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].MatchScore != hits[j].MatchScore {
			return hits[i].MatchScore > hits[j].MatchScore
		}
		return hits[i].Symbol < hits[j].Symbol
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
