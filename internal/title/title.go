// Package title holds the pure, side-effect-free title-normalisation and
// fuzzy-similarity helpers shared by the MAL client and the mapping
// resolver. Nothing here mutates state; every function returns a new
// value.
package title

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	affixRe         = regexp.MustCompile(`(?i)\b(sub indo|batch|nonton anime)\b`)
	whitespaceRe    = regexp.MustCompile(`\s+`)

	// quoteStrip covers the punctuation that varies between localisations
	// without changing meaning: straight/curly/full-width quotes and bangs.
	quoteStrip = strings.NewReplacer(
		`"`, "", `'`, "",
		"“", "", "”", "",
		"‘", "", "’", "",
		"＂", "", "＇", "",
		"?", "", "!", "", "！", "",
	)

	seasonRe = regexp.MustCompile(`(?i)\b(?:cour\s*(\d+)|season\s*(\d+)|(\d+)(?:st|nd|rd|th)\s*season|s(\d+)\b|part\s*(\d+))\b`)
)

// CleanTitle strips parenthetical asides, localisation affixes, and a
// closed set of punctuation marks, then collapses whitespace. Long titles
// that otherwise fall a couple of percent short of the similarity
// threshold due to punctuation alone are fixed here, not by loosening the
// threshold.
func CleanTitle(s string) string {
	s = parentheticalRe.ReplaceAllString(s, " ")
	s = affixRe.ReplaceAllString(s, " ")
	s = quoteStrip.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormaliseSeason rewrites any of the common season/cour suffix spellings
// into a canonical "part N" form so comparisons across providers and MAL
// don't fail purely on suffix convention.
func NormaliseSeason(s string) string {
	return seasonRe.ReplaceAllStringFunc(s, func(match string) string {
		groups := seasonRe.FindStringSubmatch(match)
		for _, g := range groups[1:] {
			if g != "" {
				return "part " + g
			}
		}
		return match
	})
}

// Similarity returns a value in [0,1]: 1 minus the Levenshtein distance
// normalised by the length of the longer string. Identical strings
// (including both empty) score 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float64(dist)/float64(longer)
	if score < 0 {
		return 0
	}
	return score
}

// LevenshteinDistance exposes the raw edit distance for callers (tests,
// diagnostics) that want it directly rather than the derived similarity.
func LevenshteinDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// CanonicalSlug lowercases, strips everything but letters/digits, and
// joins the remaining runs with single hyphens — generalised from
// internal/scraper's space-joined normalizeKey to the hyphen-joined slug
// form providers publish.
func CanonicalSlug(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))

	prevHyphen := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevHyphen = false
			continue
		}
		if !prevHyphen && b.Len() > 0 {
			b.WriteRune('-')
			prevHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// IsPrefixRelation reports whether one canonical slug is a hyphen-boundary
// prefix of the other. minLen floors only the query side (a), so a short
// generic query doesn't spuriously match everything; the variant side (b)
// is free to be shorter than minLen.
func IsPrefixRelation(a, b string, minLen int) bool {
	sa, sb := CanonicalSlug(a), CanonicalSlug(b)
	if len(sa) < minLen {
		return false
	}
	return strings.HasPrefix(sb, sa+"-") || strings.HasPrefix(sa, sb+"-")
}
