// Package homefeed aggregates every configured provider's listing page
// into one deduplicated home feed, and exposes the genre-browse search
// passthrough to Jikan. Grounded on internal/scraper.FetchAndMerge's
// merge-by-canonical-key pattern, adapted from manga-merge semantics to
// anime-card dedup-by-slug.
package homefeed

import (
	"context"
	"log"
	"sync"

	"mangahub/internal/mal"
	"mangahub/internal/providers"
	"mangahub/internal/title"
	"mangahub/pkg/models"
)

// Item is one deduplicated home-feed row: a title seen on one or more
// providers, with every provider's slug attached.
type Item struct {
	Name          string            `json:"name"`
	Cover         string            `json:"cover"`
	Slugs         []string          `json:"slugs"`
	Provider      string            `json:"provider"`
	Sources       []string          `json:"sources"`
	ProviderSlugs map[string]string `json:"providerSlugs"`
}

type Service struct {
	registry  *providers.Registry
	malClient *mal.Client
}

func New(registry *providers.Registry, malClient *mal.Client) *Service {
	return &Service{registry: registry, malClient: malClient}
}

// Home scrapes every configured provider's listing page in parallel and
// merges cards that resolve to the same canonical slug, the way
// FetchAndMerge folds same-manga cards from different scrapers into one
// row keyed by a normalised title.
func (s *Service) Home(ctx context.Context) []Item {
	type scraped struct {
		provider string
		cards    []models.ScrapedCard
	}
	results := make(chan scraped, len(s.registry.All()))
	var wg sync.WaitGroup

	for _, p := range s.registry.All() {
		wg.Add(1)
		go func(p models.ProviderConfig) {
			defer wg.Done()
			cards, err := providers.SearchCards(ctx, p, "")
			if err != nil {
				log.Printf("[homefeed] scrape %s failed: %v", p.Name, err)
				return
			}
			results <- scraped{provider: p.Name, cards: cards}
		}(p)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	byKey := map[string]*Item{}
	var order []string
	for r := range results {
		for _, card := range r.cards {
			key := title.CanonicalSlug(card.Title)
			item, ok := byKey[key]
			if !ok {
				item = &Item{
					Name:          card.Title,
					Cover:         card.CoverURL,
					Provider:      r.provider,
					ProviderSlugs: map[string]string{},
				}
				byKey[key] = item
				order = append(order, key)
			}
			item.Slugs = append(item.Slugs, card.Slug)
			item.ProviderSlugs[r.provider] = card.Slug
			if !contains(item.Sources, r.provider) {
				item.Sources = append(item.Sources, r.provider)
			}
			if item.Cover == "" {
				item.Cover = card.CoverURL
			}
		}
	}

	out := make([]Item, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// SearchGenre passes a genre browse query straight through to Jikan.
func (s *Service) SearchGenre(ctx context.Context, genreID string, page int) ([]models.MALCandidate, bool, error) {
	return s.malClient.SearchByGenre(ctx, genreID, page)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
