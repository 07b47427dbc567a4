package text

import (
	"sort"
	"strings"
	"unicode"

	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	Ellipsis = "…"
)

// Normalize text to aid in the filtering process. In particular, we remove
// diacritics, "ö" becomes "o", and fold case. Note that Mn is the unicode key
// for nonspacing marks.
func Normalize(in string) (string, error) {
	transformer := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(transformer, in)
	return strings.ToLower(out), err
}

// Match returns the indexes of haystacks that match needle, in haystack
// order. Every whitespace separated term of the needle must match the same
// haystack as a substring; when no haystack matches that way, fuzzy matching
// is used as a fallback so typos still find something.
func Match(needle string, haystacks []string) []int {
	needle = strings.TrimSpace(needle)
	idx := make([]int, 0, len(haystacks))
	if needle == "" {
		for i := range haystacks {
			idx = append(idx, i)
		}
		return idx
	}

	normNeedle, err := Normalize(needle)
	if err != nil {
		normNeedle = strings.ToLower(needle)
	}
	terms := strings.Fields(normNeedle)

	normalized := make([]string, len(haystacks))
	for i, h := range haystacks {
		n, err := Normalize(h)
		if err != nil {
			n = strings.ToLower(h)
		}
		normalized[i] = n
	}

	for i, h := range normalized {
		if containsAll(h, terms) {
			idx = append(idx, i)
		}
	}
	if len(idx) > 0 {
		return idx
	}

	ranks := fuzzy.Find(normNeedle, normalized)
	for _, r := range ranks {
		idx = append(idx, r.Index)
	}
	// keep the caller's ordering rather than fuzzy score
	sort.Ints(idx)
	return idx
}

func containsAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

func TruncateWithTail(txt string, width uint, ellipsis string) string {
	return truncate.StringWithTail(txt, width, ellipsis)
}
