// Package resolver implements the full multi-factor discovery pipeline
// (SPEC_FULL §4.6): visual matching via perceptual hash, MAL fallback via
// fuzzy title search, and cross-provider discovery, all behind a
// request-coalescing lock so concurrent lookups for the same key cost one
// discovery.
package resolver

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"golang.org/x/sync/singleflight"

	"mangahub/internal/mal"
	"mangahub/internal/mapping"
	"mangahub/internal/phash"
	"mangahub/internal/providers"
	"mangahub/internal/title"
	"mangahub/pkg/models"
)

type Options struct {
	PHashThreshold   int
	SimilarityThresh float64
	EpisodeTolerance int
}

// Resolver ties together the mapping store, the MAL client, and the
// provider registry behind a singleflight.Group request-coalescing lock —
// grounded on the teacher's own indirect dependency on
// golang.org/x/sync/singleflight, a strictly better fit than a hand-rolled
// mutex+map for "collapse concurrent callers onto one in-flight future,
// forget on completion."
type Resolver struct {
	store     *mapping.Store
	malClient *mal.Client
	registry  *providers.Registry
	opts      Options
	group     singleflight.Group
}

func New(store *mapping.Store, malClient *mal.Client, registry *providers.Registry, opts Options) *Resolver {
	return &Resolver{store: store, malClient: malClient, registry: registry, opts: opts}
}

// ResolveBySlug implements SPEC_FULL §4.6's discovery pipeline entered
// from a provider slug.
func (r *Resolver) ResolveBySlug(ctx context.Context, provider, slug string) (*models.Mapping, error) {
	key := fmt.Sprintf("%s:%s", provider, slug)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveBySlugUncoalesced(ctx, provider, slug)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*models.Mapping), nil
}

// ResolveByMALID implements the MAL-id-entry variant of the pipeline.
func (r *Resolver) ResolveByMALID(ctx context.Context, malID int64) (*models.Mapping, error) {
	key := fmt.Sprintf("mal:%d", malID)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveByMALIDUncoalesced(ctx, malID)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*models.Mapping), nil
}

func (r *Resolver) resolveBySlugUncoalesced(ctx context.Context, provider, slug string) (*models.Mapping, error) {
	if existing, err := r.store.BySlug(ctx, provider, slug); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	p, ok := r.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("resolver: unknown provider %q", provider)
	}

	detail, err := providers.FetchDetail(ctx, p, slug)
	if err != nil {
		return nil, fmt.Errorf("resolver: scrape detail: %w", err)
	}

	var hash string
	if detail.CoverURL != "" && withinDomainFamily(p, detail.CoverURL) {
		h, err := phash.Compute(ctx, detail.CoverURL)
		if err != nil {
			log.Printf("[resolver] phash compute failed for %s/%s: %v", provider, slug, err)
		} else {
			hash = h
		}
	}

	var candidate *models.MALCandidate
	var malID int64

	if hash != "" {
		if m, dist, err := r.store.NearestByPHash(ctx, hash, r.opts.PHashThreshold); err != nil {
			log.Printf("[resolver] nearest phash lookup failed: %v", err)
		} else if m != nil {
			malID = m.MALID
			log.Printf("[resolver] visual match for %s/%s: mal_id=%d dist=%d", provider, slug, malID, dist)
		}
	}

	if malID == 0 {
		c, err := r.malClient.SearchByTitle(ctx, title.CleanTitle(detail.Title), detail.Year)
		if err != nil {
			return nil, fmt.Errorf("resolver: mal search: %w", err)
		}
		if c == nil || !r.acceptsMALCandidate(*c, detail) {
			return nil, nil
		}
		candidate = c
		malID = c.MALID
	}

	titleMain := detail.Title
	if candidate != nil && candidate.TitleEnglish != "" {
		titleMain = candidate.TitleEnglish
	}

	fields := mapping.UpsertFields{
		MALID:        malID,
		TitleMain:    titleMain,
		ProviderSlug: map[string]string{provider: slug},
	}
	if hash != "" {
		fields.PHashV1 = &hash
	}
	if detail.Year > 0 {
		y := detail.Year
		fields.ReleaseYear = &y
	}
	if detail.TotalEpisodes > 0 {
		e := detail.TotalEpisodes
		fields.TotalEpisodes = &e
	}
	if candidate != nil {
		if candidate.Year > 0 {
			fields.ReleaseYear = &candidate.Year
		}
		if candidate.TotalEpisodes > 0 {
			fields.TotalEpisodes = &candidate.TotalEpisodes
		}
	}

	m, err := r.store.Upsert(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("resolver: upsert: %w", err)
	}

	r.discoverOtherProviders(ctx, m, provider)

	return m, nil
}

func (r *Resolver) resolveByMALIDUncoalesced(ctx context.Context, malID int64) (*models.Mapping, error) {
	if existing, err := r.store.ByMALID(ctx, malID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	full, err := r.malClient.GetFullByID(ctx, malID)
	if err != nil {
		return nil, fmt.Errorf("resolver: mal full lookup: %w", err)
	}
	if full == nil {
		return nil, nil
	}

	if err := mapping.UpsertMALMetadata(ctx, r.store.DB, full); err != nil {
		log.Printf("[resolver] cache mal metadata failed: %v", err)
	}

	fields := mapping.UpsertFields{MALID: malID, TitleMain: primaryTitle(full)}
	if full.Year > 0 {
		y := full.Year
		fields.ReleaseYear = &y
	}
	if full.TotalEpisodes > 0 {
		e := full.TotalEpisodes
		fields.TotalEpisodes = &e
	}
	m, err := r.store.Upsert(ctx, fields)
	if err != nil {
		return nil, err
	}

	r.discoverOtherProviders(ctx, m, "")

	return r.store.ByMALID(ctx, malID)
}

// discoverOtherProviders implements SPEC_FULL §4.6.1: once a mapping's MAL
// identity is known, search every provider that doesn't yet have a slug
// for it and accept a candidate when its title matches closely and its
// metadata (or visual hash, when scraped) doesn't contradict what's
// already on file. sourceProvider is skipped (it was just the entry
// point) and may be "" when entering from a MAL id directly.
func (r *Resolver) discoverOtherProviders(ctx context.Context, m *models.Mapping, sourceProvider string) {
	meta, err := mapping.GetMALMetadata(ctx, r.store.DB, m.MALID)
	if err != nil {
		log.Printf("[resolver] load cached mal metadata failed: %v", err)
		return
	}
	if meta == nil {
		full, err := r.malClient.GetFullByID(ctx, m.MALID)
		if err != nil || full == nil {
			return
		}
		if err := mapping.UpsertMALMetadata(ctx, r.store.DB, full); err != nil {
			log.Printf("[resolver] cache mal metadata failed: %v", err)
		}
		meta = full
	}

	knownHash := m.PHashV1

	for _, p := range r.registry.All() {
		if p.Name == sourceProvider {
			continue
		}
		if _, ok := m.SlugFor(p.Name); ok {
			continue
		}

		slug, hash := r.discoverOn(ctx, p, meta, knownHash)
		if slug == "" {
			continue
		}
		if knownHash == "" && hash != "" {
			knownHash = hash
		}

		var hf *string
		if knownHash != "" {
			hf = &knownHash
		}
		if _, err := r.store.Upsert(ctx, mapping.UpsertFields{
			MALID:        m.MALID,
			TitleMain:    m.TitleMain,
			ProviderSlug: map[string]string{p.Name: slug},
			PHashV1:      hf,
		}); err != nil {
			log.Printf("[resolver] upsert cross-provider slug failed: %v", err)
		}
	}
}

// discoverOn implements discover_on(target, jikan, known_phash) from
// SPEC_FULL §4.6.1: an ordered query-variant search, a card-title
// pre-filter that's skipped for providers whose card titles are already
// full and relevant when the result set is small, a hash-path accept when
// a known pHash is already on file, a metadata-path accept otherwise, and
// a direct-slug last resort when search turns up nothing.
func (r *Resolver) discoverOn(ctx context.Context, p models.ProviderConfig, meta *models.MALMetadata, knownHash string) (slug, hash string) {
	cand := models.MALCandidate{TitleEnglish: meta.TitleEnglish, TitleRomaji: meta.TitleRomaji, TitleJapanese: meta.TitleJapanese}

	for _, variant := range queryVariants(cand.Titles()) {
		cards, err := providers.SearchCards(ctx, p, variant)
		if err != nil {
			log.Printf("[resolver] search %s on %s failed: %v", variant, p.Name, err)
			continue
		}
		cards = filterByDomainFamily(p, cards)
		if len(cards) == 0 {
			continue
		}

		skipPrefilter := p.UsesRomajiFullTitles && len(cards) <= 3

		for i := range cards {
			card := cards[i]
			if !skipPrefilter {
				if !cardMatchesTitle(card.Title, cand, r.opts.SimilarityThresh) {
					continue
				}
			}

			if knownHash != "" && card.CoverURL != "" {
				if h, err := phash.Compute(ctx, card.CoverURL); err == nil {
					if d := phash.Hamming(knownHash, h); d >= 0 && d < 5 {
						return card.Slug, h
					}
				}
			}

			detail, err := providers.FetchDetail(ctx, p, card.Slug)
			if err != nil {
				log.Printf("[resolver] detail fetch %s/%s failed: %v", p.Name, card.Slug, err)
				continue
			}
			if !withinDomainFamily(p, detail.CoverURL) {
				continue
			}
			if !cardMatchesTitle(detail.Title, cand, r.opts.SimilarityThresh) && !title.IsPrefixRelation(detail.Title, card.Title, 5) {
				continue
			}
			if mal.BothMetadataUnknown(detail.Year, detail.TotalEpisodes) {
				continue
			}
			if !mal.ValidateMetadata(meta.Year, meta.TotalEpisodes, detail.Year, detail.TotalEpisodes, r.opts.EpisodeTolerance) {
				continue
			}

			if detail.CoverURL != "" {
				if h, err := phash.Compute(ctx, detail.CoverURL); err == nil {
					hash = h
				}
			}
			return card.Slug, hash
		}
	}

	return r.discoverByDirectSlug(ctx, p, cand, meta)
}

// discoverByDirectSlug implements §4.6.1 step 5: derive candidate slugs
// straight from the title, bypassing search entirely, for providers whose
// search endpoint turned up nothing.
func (r *Resolver) discoverByDirectSlug(ctx context.Context, p models.ProviderConfig, cand models.MALCandidate, meta *models.MALMetadata) (slug, hash string) {
	seasonNum, hasSeason := seasonNumber(primaryTitleOf(cand))

	for _, s := range derivedSlugs(primaryTitleOf(cand), seasonNum, hasSeason, meta.Year) {
		detail, err := providers.FetchDetail(ctx, p, s)
		if err != nil {
			continue
		}
		if !withinDomainFamily(p, detail.CoverURL) {
			continue
		}

		titleOK := cardMatchesTitle(detail.Title, cand, r.opts.SimilarityThresh) || title.IsPrefixRelation(detail.Title, primaryTitleOf(cand), 5)
		metaKnown := detail.Year > 0 || detail.TotalEpisodes > 0

		if !metaKnown {
			if hasSeason || !titleOK {
				continue
			}
		} else {
			if !titleOK {
				continue
			}
			if !mal.ValidateMetadata(meta.Year, meta.TotalEpisodes, detail.Year, detail.TotalEpisodes, r.opts.EpisodeTolerance) {
				continue
			}
		}

		if detail.CoverURL != "" {
			if h, err := phash.Compute(ctx, detail.CoverURL); err == nil {
				hash = h
			}
		}
		return s, hash
	}
	return "", ""
}

func cardMatchesTitle(cardTitle string, cand models.MALCandidate, thresh float64) bool {
	normCard := title.NormaliseSeason(title.CleanTitle(cardTitle))
	for _, t := range cand.Titles() {
		if title.Similarity(title.NormaliseSeason(title.CleanTitle(t)), normCard) >= thresh {
			return true
		}
	}
	return false
}

var seasonSuffixRe = regexp.MustCompile(`(?i)\b(?:cour\s*\d+|season\s*\d+|\d+(?:st|nd|rd|th)\s*season|s\d+|part\s*\d+)\b`)

// queryVariants builds the ordered, deduplicated query list of §4.6.1:
// full title, pre-colon prefix, season-clause-stripped base, and the
// first-three-words prefix when it's at least 8 characters.
func queryVariants(titles []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, t := range titles {
		add(t)
		if idx := strings.Index(t, ":"); idx > 0 {
			add(strings.TrimSpace(t[:idx]))
		}
		add(seasonSuffixRe.ReplaceAllString(t, ""))
		if words := strings.Fields(t); len(words) >= 3 {
			prefix := strings.Join(words[:3], " ")
			if len(prefix) >= 8 {
				add(prefix)
			}
		}
	}
	return out
}

func filterByDomainFamily(p models.ProviderConfig, cards []models.ScrapedCard) []models.ScrapedCard {
	out := make([]models.ScrapedCard, 0, len(cards))
	for _, c := range cards {
		if withinDomainFamily(p, c.CoverURL) {
			out = append(out, c)
		}
	}
	return out
}

func withinDomainFamily(p models.ProviderConfig, coverURL string) bool {
	if coverURL == "" {
		return true
	}
	for _, d := range p.DomainFamily {
		if strings.Contains(coverURL, d) {
			return true
		}
	}
	return false
}

func primaryTitleOf(c models.MALCandidate) string {
	if c.TitleEnglish != "" {
		return c.TitleEnglish
	}
	if c.TitleRomaji != "" {
		return c.TitleRomaji
	}
	return c.TitleJapanese
}

var lightNovelSeparators = []string{" to ", " node ", " ga ", " de ", " ni ", " wo "}

// derivedSlugs implements the direct-slug derivation of §4.6.1 step 5:
// full canonical slug, pre-colon slug, base slug cut at a light-novel
// separator word, and (when a season number is known) the common
// season-suffix spellings, plus year-suffixed variants of the full and
// base slugs.
func derivedSlugs(rawTitle string, seasonNum int, hasSeason bool, year int) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.Trim(s, "-")
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	full := title.CanonicalSlug(rawTitle)
	add(full)

	if idx := strings.Index(rawTitle, ":"); idx > 0 {
		add(title.CanonicalSlug(rawTitle[:idx]))
	}

	base := full
	lower := strings.ToLower(rawTitle)
	for _, sep := range lightNovelSeparators {
		if i := strings.Index(lower, sep); i > 0 {
			cut := title.CanonicalSlug(rawTitle[:i])
			if cut != "" {
				base = cut
			}
			break
		}
	}
	add(base)

	if hasSeason && seasonNum >= 2 {
		add(fmt.Sprintf("%s-season-%d", base, seasonNum))
		add(fmt.Sprintf("%s-%dnd-season", base, seasonNum))
		add(fmt.Sprintf("%s-part-%d", base, seasonNum))
		add(fmt.Sprintf("%s-s%d", base, seasonNum))
	}

	if year > 0 {
		add(fmt.Sprintf("%s-%d", base, year))
		add(fmt.Sprintf("%s-%d", full, year))
	}

	return out
}

var seasonNumRe = regexp.MustCompile(`(?i)\b(?:season\s*(\d+)|(\d+)(?:st|nd|rd|th)\s*season|s(\d+)\b|part\s*(\d+))\b`)

func seasonNumber(rawTitle string) (int, bool) {
	m := seasonNumRe.FindStringSubmatch(rawTitle)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g != "" {
			n := 0
			for _, c := range g {
				n = n*10 + int(c-'0')
			}
			return n, true
		}
	}
	return 0, false
}

func (r *Resolver) acceptsMALCandidate(c models.MALCandidate, d *models.ScrapedDetail) bool {
	hasYear := d.Year > 0
	titleOK := false
	for _, t := range c.Titles() {
		if title.Similarity(title.NormaliseSeason(title.CleanTitle(d.Title)), title.NormaliseSeason(t)) >= r.opts.SimilarityThresh {
			titleOK = true
			break
		}
	}
	metaOK := mal.ValidateMetadata(c.Year, c.TotalEpisodes, d.Year, d.TotalEpisodes, r.opts.EpisodeTolerance)

	if hasYear {
		return titleOK && metaOK
	}
	return titleOK || metaOK
}

func primaryTitle(m *models.MALMetadata) string {
	if m.TitleEnglish != "" {
		return m.TitleEnglish
	}
	if m.TitleRomaji != "" {
		return m.TitleRomaji
	}
	return m.TitleJapanese
}
