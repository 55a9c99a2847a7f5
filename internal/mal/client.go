// Package mal implements the throttled MyAnimeList (Jikan) client: multi-
// query fuzzy search, direct id lookups, and the metadata-validation gate
// the mapping resolver uses to accept or reject a candidate.
package mal

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mangahub/internal/title"
	"mangahub/pkg/models"
)

var ErrGenreSearchUnsupported = errors.New("mal: transport does not support genre search")

// Transport is the out-of-scope collaborator: the raw HTTP client hitting
// api.jikan.moe. The core only depends on this small interface so
// throttle/search/validate logic stays a pure consumer.
type Transport interface {
	SearchAnime(ctx context.Context, query string, limit int) ([]models.MALCandidate, error)
	GetAnimeByID(ctx context.Context, malID int64) (*models.MALCandidate, error)
	GetAnimeFullByID(ctx context.Context, malID int64) (*models.MALMetadata, error)
}

// Client wraps a Transport with the 400ms single-slot throttle, the
// multi-query fuzzy search, and the metadata-validation predicate.
type Client struct {
	transport        Transport
	limiter          *rate.Limiter
	similarityThresh float64
}

func New(transport Transport, throttle time.Duration, similarityThresh float64) *Client {
	return &Client{
		transport:        transport,
		limiter:          rate.NewLimiter(rate.Every(throttle), 1),
		similarityThresh: similarityThresh,
	}
}

func (c *Client) wait(ctx context.Context) {
	if err := c.limiter.Wait(ctx); err != nil {
		log.Printf("[mal] throttle wait: %v", err)
	}
}

// SearchByTitle runs the multi-query fuzzy search described in SPEC_FULL
// §4.3: raw title, season-clause-stripped title, and the normalised-season
// form, scored against each candidate's title variants.
func (c *Client) SearchByTitle(ctx context.Context, raw string, scrapedYear int) (*models.MALCandidate, error) {
	queries := buildQueryVariants(raw)

	var best *models.MALCandidate
	var bestScore float64
	var bestHasYearMatch bool

	for _, q := range queries {
		c.wait(ctx)
		candidates, err := c.transport.SearchAnime(ctx, q, 5)
		if err != nil {
			log.Printf("[mal] search %q failed: %v", q, err)
			continue
		}

		for i := range candidates {
			cand := candidates[i]
			score := bestTitleScore(q, raw, cand)

			yearMatch := scrapedYear > 0 && cand.Year > 0 && absInt(cand.Year-scrapedYear) <= 1

			better := score > bestScore
			tie := score == bestScore && !bestHasYearMatch && yearMatch
			if best == nil || better || tie {
				best = &cand
				bestScore = score
				bestHasYearMatch = yearMatch
			}
		}

		if bestScore >= c.similarityThresh && (scrapedYear == 0 || bestHasYearMatch) {
			break
		}
	}

	if best == nil || bestScore < c.similarityThresh {
		return nil, nil
	}
	return best, nil
}

// bestTitleScore takes the maximum similarity across the candidate's three
// title variants compared against both the raw query and the normalised-
// season forms, with a prefix-relation floor of 0.92.
func bestTitleScore(query, raw string, cand models.MALCandidate) float64 {
	normRaw := title.NormaliseSeason(raw)
	best := 0.0
	for _, variant := range cand.Titles() {
		normVariant := title.NormaliseSeason(variant)
		score := title.Similarity(normRaw, normVariant)
		if s2 := title.Similarity(title.NormaliseSeason(query), normVariant); s2 > score {
			score = s2
		}
		if title.IsPrefixRelation(query, variant, 5) && score < 0.92 {
			score = 0.92
		}
		if score > best {
			best = score
		}
	}
	return best
}

// buildQueryVariants returns an ordered, deduplicated query list: the raw
// title, the raw title with the season/cour/part clause and everything
// after it removed, and the fully normalised-season form.
func buildQueryVariants(raw string) []string {
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

	add(raw)
	add(stripSeasonClauseAndAfter(raw))
	add(title.NormaliseSeason(raw))
	return out
}

var sNumMarkerRe = regexp.MustCompile(`(?i)\ss\d+\b`)

func stripSeasonClauseAndAfter(s string) string {
	lower := strings.ToLower(s)
	cut := len(s)
	for _, m := range []string{" season", " cour", " part"} {
		if idx := strings.Index(lower, m); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	if loc := sNumMarkerRe.FindStringIndex(s); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	return strings.TrimSpace(s[:cut])
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// GetByID fetches the lightweight candidate record for a known MAL id.
func (c *Client) GetByID(ctx context.Context, malID int64) (*models.MALCandidate, error) {
	c.wait(ctx)
	return c.transport.GetAnimeByID(ctx, malID)
}

// GetFullByID fetches the rich metadata record for a known MAL id.
func (c *Client) GetFullByID(ctx context.Context, malID int64) (*models.MALMetadata, error) {
	c.wait(ctx)
	return c.transport.GetAnimeFullByID(ctx, malID)
}

// GenreSearcher is an optional capability transports may implement; the
// shipped JikanTransport does, so /api/v1/search works without widening
// the core Transport interface every fake implementation must satisfy.
type GenreSearcher interface {
	SearchByGenre(ctx context.Context, genreID string, page int) ([]models.MALCandidate, bool, error)
}

// SearchByGenre throttles a genre-browse call the same way every other
// Jikan call is throttled, returning ErrGenreSearchUnsupported if the
// configured transport doesn't implement GenreSearcher.
func (c *Client) SearchByGenre(ctx context.Context, genreID string, page int) ([]models.MALCandidate, bool, error) {
	gs, ok := c.transport.(GenreSearcher)
	if !ok {
		return nil, false, ErrGenreSearchUnsupported
	}
	c.wait(ctx)
	return gs.SearchByGenre(ctx, genreID, page)
}

// ValidateMetadata implements the metadata-gate of SPEC_FULL §4.3: known
// years must agree within 1, known episode counts within epTolerance.
// Unknown fields on either side always pass.
func ValidateMetadata(malYear, malEpisodes int, scrapedYear, scrapedEpisodes, epTolerance int) bool {
	if malYear > 0 && scrapedYear > 0 {
		if absInt(malYear-scrapedYear) > 1 {
			return false
		}
	}
	if malEpisodes > 0 && scrapedEpisodes > 0 {
		if absInt(malEpisodes-scrapedEpisodes) > epTolerance {
			return false
		}
	}
	return true
}

// BothMetadataUnknown reports whether a record carries neither a year nor
// an episode count; §4.6.1 skips a cross-provider candidate whose detail
// page is in that state, since nothing confirms it.
func BothMetadataUnknown(year, episodes int) bool {
	return year == 0 && episodes == 0
}
