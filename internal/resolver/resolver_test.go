package resolver

import (
	"testing"

	"mangahub/pkg/models"
)

func TestAcceptsMALCandidateRequiresBothGatesWhenYearKnown(t *testing.T) {
	r := &Resolver{opts: Options{SimilarityThresh: 0.85, EpisodeTolerance: 2}}
	d := &models.ScrapedDetail{Title: "Jujutsu Kaisen", Year: 2020, TotalEpisodes: 24}

	goodTitle := models.MALCandidate{TitleEnglish: "Jujutsu Kaisen", Year: 2020, TotalEpisodes: 24}
	if !r.acceptsMALCandidate(goodTitle, d) {
		t.Fatalf("expected matching candidate to be accepted")
	}

	wrongYear := models.MALCandidate{TitleEnglish: "Jujutsu Kaisen", Year: 2017, TotalEpisodes: 24}
	if r.acceptsMALCandidate(wrongYear, d) {
		t.Fatalf("expected year-mismatched candidate with known scraped year to be rejected")
	}
}

func TestAcceptsMALCandidateEitherGateWhenYearUnknown(t *testing.T) {
	r := &Resolver{opts: Options{SimilarityThresh: 0.85, EpisodeTolerance: 2}}
	d := &models.ScrapedDetail{Title: "Frieren", Year: 0, TotalEpisodes: 28}

	candidate := models.MALCandidate{TitleEnglish: "Frieren: Beyond Journey's End", Year: 2023, TotalEpisodes: 28}
	if !r.acceptsMALCandidate(candidate, d) {
		t.Fatalf("expected metadata-only match to pass when scraped year is unknown")
	}
}

func TestQueryVariantsIncludesPreColonAndWordPrefix(t *testing.T) {
	variants := queryVariants([]string{"Frieren: Beyond Journey's End"})

	for _, want := range []string{"Frieren", "Frieren: Beyond Journey's"} {
		found := false
		for _, v := range variants {
			if v == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected variant %q in %v", want, variants)
		}
	}
}

func TestQueryVariantsDedupes(t *testing.T) {
	variants := queryVariants([]string{"One Piece", "One Piece"})
	seen := map[string]int{}
	for _, v := range variants {
		seen[v]++
	}
	for v, n := range seen {
		if n > 1 {
			t.Fatalf("expected %q to appear once, got %d", v, n)
		}
	}
}

func TestSeasonNumberExtractsSecondSeason(t *testing.T) {
	n, ok := seasonNumber("Jigokuraku Season 2")
	if !ok || n != 2 {
		t.Fatalf("expected season 2, got n=%d ok=%v", n, ok)
	}

	if _, ok := seasonNumber("One Piece"); ok {
		t.Fatalf("expected no season marker in title without one")
	}
}

func TestDerivedSlugsIncludesSeasonSuffixesWhenKnown(t *testing.T) {
	slugs := derivedSlugs("Jigokuraku", 2, true, 0)

	for _, want := range []string{"jigokuraku-season-2", "jigokuraku-2nd-season", "jigokuraku-part-2", "jigokuraku-s2"} {
		found := false
		for _, s := range slugs {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q among derived slugs %v", want, slugs)
		}
	}
}

func TestDerivedSlugsCutsAtLightNovelSeparator(t *testing.T) {
	slugs := derivedSlugs("Kono Subarashii Sekai ni Shukufuku wo", 0, false, 0)

	want := "kono-subarashii-sekai"
	found := false
	for _, s := range slugs {
		if s == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected light-novel-separator cut slug %q among %v", want, slugs)
	}
}

func TestWithinDomainFamilyAcceptsMatchingHost(t *testing.T) {
	p := models.ProviderConfig{DomainFamily: []string{"animasu.id", "cdn.animasu.id"}}

	if !withinDomainFamily(p, "https://cdn.animasu.id/cover.jpg") {
		t.Fatalf("expected cdn host within domain family to be accepted")
	}
	if withinDomainFamily(p, "https://evil.example/cover.jpg") {
		t.Fatalf("expected unrelated host to be rejected")
	}
	if !withinDomainFamily(p, "") {
		t.Fatalf("expected empty cover URL to pass through")
	}
}
