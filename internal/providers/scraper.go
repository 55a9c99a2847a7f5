package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"mangahub/pkg/models"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("providers: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; mangahub-scraper/1.0)")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("providers: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("providers: status %d for %s", resp.StatusCode, pageURL)
	}

	finalURL := resp.Request.URL.String()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("providers: parse html: %w", err)
	}
	return doc, finalURL, nil
}

// SearchCards hits the provider's search endpoint and extracts result
// cards according to its selector config.
func SearchCards(ctx context.Context, p models.ProviderConfig, query string) ([]models.ScrapedCard, error) {
	searchURL := fmt.Sprintf(p.SearchURLTemplate, url.QueryEscape(query))
	doc, _, err := fetchDoc(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	var cards []models.ScrapedCard
	doc.Find(p.CardSelector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(p.CardTitleSelector).First().Text())
		cover, _ := sel.Find(p.CardCoverSelector).First().Attr("src")
		var slug string
		if href, ok := sel.Find(p.CardSlugAttr).First().Attr("href"); ok {
			slug = slugFromURL(href)
		} else if href, ok := sel.Attr(p.CardSlugAttr); ok {
			slug = slugFromURL(href)
		}
		if title == "" || slug == "" {
			return
		}
		cards = append(cards, models.ScrapedCard{
			Provider: p.Name,
			Slug:     slug,
			Title:    title,
			CoverURL: cover,
		})
	})
	return cards, nil
}

// FetchDetail scrapes a single detail page into a ScrapedDetail.
func FetchDetail(ctx context.Context, p models.ProviderConfig, slug string) (*models.ScrapedDetail, error) {
	detailURL := fmt.Sprintf("https://%s/%s", primaryDomain(p), slug)
	doc, _, err := fetchDoc(ctx, detailURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(p.DetailTitleSelector).First().Text())
	cover, _ := doc.Find(p.DetailCoverSelector).First().Attr("src")
	yearText := strings.TrimSpace(doc.Find(p.DetailYearSelector).First().Text())
	epText := strings.TrimSpace(doc.Find(p.DetailEpisodeSelector).First().Text())

	if title == "" {
		return nil, fmt.Errorf("providers: %s/%s: no title found", p.Name, slug)
	}

	return &models.ScrapedDetail{
		Provider:      p.Name,
		Slug:          slug,
		Title:         title,
		CoverURL:      cover,
		Year:          extractYear(yearText),
		TotalEpisodes: extractInt(epText),
	}, nil
}

// FetchEpisodeServers scrapes an episode page's embed-server list.
func FetchEpisodeServers(ctx context.Context, p models.ProviderConfig, slug string, episode int) ([]models.StreamingServer, error) {
	epURL := fmt.Sprintf(p.EpisodeURLTemplate, slug, episode)
	doc, _, err := fetchDoc(ctx, epURL)
	if err != nil {
		return nil, err
	}

	var servers []models.StreamingServer
	doc.Find(p.ServerListSelector).Each(func(_ int, sel *goquery.Selection) {
		embed, _ := sel.Attr("data-embed")
		if embed == "" {
			embed, _ = sel.Attr("value")
		}
		if embed == "" {
			return
		}
		resolution := strings.TrimSpace(sel.Text())
		servers = append(servers, models.StreamingServer{
			Provider:   p.Name,
			EmbedURL:   embed,
			Resolution: resolution,
		})
	})
	return servers, nil
}

func primaryDomain(p models.ProviderConfig) string {
	if len(p.DomainFamily) > 0 {
		return p.DomainFamily[0]
	}
	return ""
}

func slugFromURL(href string) string {
	href = strings.TrimSuffix(href, "/")
	idx := strings.LastIndex(href, "/")
	if idx < 0 {
		return href
	}
	return href[idx+1:]
}

func extractYear(s string) int {
	n := extractInt(s)
	if n >= 1900 && n <= 2100 {
		return n
	}
	return 0
}

func extractInt(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
