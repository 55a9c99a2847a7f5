package title

import "testing"

func TestSimilarityBounds(t *testing.T) {
	cases := [][2]string{
		{"", ""},
		{"Jigokuraku", "Jigokuraku"},
		{"Jigokuraku Season 2", "Jigokuraku: Hell's Paradise"},
	}
	for _, c := range cases {
		s := Similarity(c[0], c[1])
		if s < 0 || s > 1 {
			t.Fatalf("similarity(%q,%q) = %v out of [0,1]", c[0], c[1], s)
		}
	}
}

func TestSimilarityIdentity(t *testing.T) {
	if Similarity("hello world", "hello world") != 1 {
		t.Fatal("identical strings should score 1")
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a, b := "Jigokuraku", "Jigoku Raku"
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatal("similarity should be symmetric")
	}
}

func TestCleanTitleStripsAffixesAndPunctuation(t *testing.T) {
	got := CleanTitle(`Jigokuraku (Sub Indo) "Batch"!`)
	if got != "Jigokuraku" {
		t.Fatalf("CleanTitle = %q, want %q", got, "Jigokuraku")
	}
}

func TestNormaliseSeasonCanonicalisesVariants(t *testing.T) {
	variants := []string{
		"Kaguya-sama Cour 2",
		"Kaguya-sama Season 2",
		"Kaguya-sama 2nd Season",
		"Kaguya-sama S2",
		"Kaguya-sama Part 2",
	}
	for _, v := range variants {
		if got := NormaliseSeason(v); got != "Kaguya-sama part 2" {
			t.Errorf("NormaliseSeason(%q) = %q, want %q", v, got, "Kaguya-sama part 2")
		}
	}
}

func TestCanonicalSlug(t *testing.T) {
	got := CanonicalSlug("Jigokuraku: Hell's Paradise!")
	want := "jigokuraku-hell-s-paradise"
	if got != want {
		t.Fatalf("CanonicalSlug = %q, want %q", got, want)
	}
}

func TestIsPrefixRelation(t *testing.T) {
	if !IsPrefixRelation("One Piece", "One Piece Movie", 5) {
		t.Fatal("expected prefix relation to hold")
	}
	if IsPrefixRelation("Oi", "Oi Movie", 5) {
		t.Fatal("expected a short query to be rejected by the length floor")
	}
}

func TestIsPrefixRelationDoesNotGateVariantSideLength(t *testing.T) {
	if !IsPrefixRelation("Kino no Tabi", "Kino", 5) {
		t.Fatal("expected a short variant side to still match a long enough query")
	}
}
