package similarity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Jaccard returns |A∩B| / |A∪B| over the distinct elements of a and b.
// Two empty inputs are identical (1); exactly one empty input scores 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sa, sb := toSet(a), toSet(b)
	over := overlap(sa, sb)
	union := len(sa) + len(sb) - over
	if union <= 0 {
		return 0
	}
	return float64(over) / float64(union)
}

func toSet(xs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "was": {}, "were": {}, "this": {},
	"that": {}, "from": {}, "near": {}, "have": {}, "has": {}, "lost": {}, "found": {},
	"item": {}, "my": {}, "its": {}, "are": {}, "not": {}, "but": {}, "you": {},
	"your": {}, "left": {}, "some": {}, "one": {}, "our": {}, "about": {}, "around": {},
}

const minKeywordRunes = 3

// ExtractKeywords pulls up to max distinct keywords out of free text in
// first-seen order. Tokens are Unicode words, case-folded, at least three
// runes long, with common filler words dropped.
func ExtractKeywords(text string, max int) []string {
	if max <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	words := wordRE.FindAllString(cases.Fold().String(text), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, max)
	for _, w := range words {
		if utf8.RuneCountInString(w) < minKeywordRunes {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

// NormalizeTags case-folds each tag and strips a leading '#'. Empty and
// duplicate tags are dropped. At most max tags are kept (max <= 0 keeps all).
func NormalizeTags(tags []string, max int) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		t = cases.Fold().String(t)
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
