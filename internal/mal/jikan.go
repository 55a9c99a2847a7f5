package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mangahub/pkg/models"
)

const jikanBase = "https://api.jikan.moe/v4"

// JikanTransport is the shipped default Transport: a plain net/http client
// hitting the public Jikan REST API, built the way internal/scraper's
// source_a.go builds its MangaDex requests (manual url.Values, io.ReadAll,
// explicit status check) rather than a generated API client.
type JikanTransport struct {
	Client *http.Client
}

func NewJikanTransport() *JikanTransport {
	return &JikanTransport{Client: &http.Client{Timeout: 10 * time.Second}}
}

type jikanSearchResponse struct {
	Data []jikanAnime `json:"data"`
}

type jikanByIDResponse struct {
	Data jikanAnime `json:"data"`
}

type jikanAnime struct {
	MalID    int64  `json:"mal_id"`
	Titles   []struct {
		Type  string `json:"type"`
		Title string `json:"title"`
	} `json:"titles"`
	Title         string `json:"title"`
	TitleEnglish  string `json:"title_english"`
	TitleJapanese string `json:"title_japanese"`
	Synopsis      string `json:"synopsis"`
	Type          string `json:"type"`
	Episodes      int    `json:"episodes"`
	Status        string `json:"status"`
	Duration      string `json:"duration"`
	Score         float64 `json:"score"`
	Rank          int    `json:"rank"`
	Year          int    `json:"year"`
	Season        string `json:"season"`
	Genres        []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Studios []struct {
		Name string `json:"name"`
	} `json:"studios"`
	Images struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Aired struct {
		Prop struct {
			From struct {
				Year int `json:"year"`
			} `json:"from"`
		} `json:"prop"`
	} `json:"aired"`
}

func (t *JikanTransport) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("jikan: build request: %w", err)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("jikan: request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jikan: status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("jikan: decode: %w", err)
	}
	return nil
}

func (t *JikanTransport) SearchAnime(ctx context.Context, query string, limit int) ([]models.MALCandidate, error) {
	u, _ := url.Parse(jikanBase + "/anime")
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var resp jikanSearchResponse
	if err := t.do(ctx, u.String(), &resp); err != nil {
		return nil, err
	}

	out := make([]models.MALCandidate, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, toCandidate(a))
	}
	return out, nil
}

// SearchByGenre implements the GenreSearcher optional interface for the
// /api/v1/search endpoint, 10 results per page straight from Jikan's own
// pagination so the API doesn't have to re-slice anything.
func (t *JikanTransport) SearchByGenre(ctx context.Context, genreID string, page int) ([]models.MALCandidate, bool, error) {
	u, _ := url.Parse(jikanBase + "/anime")
	q := u.Query()
	q.Set("genres", genreID)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", "10")
	u.RawQuery = q.Encode()

	var resp struct {
		Data       []jikanAnime `json:"data"`
		Pagination struct {
			HasNextPage bool `json:"has_next_page"`
		} `json:"pagination"`
	}
	if err := t.do(ctx, u.String(), &resp); err != nil {
		return nil, false, err
	}

	out := make([]models.MALCandidate, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, toCandidate(a))
	}
	return out, resp.Pagination.HasNextPage, nil
}

func (t *JikanTransport) GetAnimeByID(ctx context.Context, malID int64) (*models.MALCandidate, error) {
	u := fmt.Sprintf("%s/anime/%d", jikanBase, malID)
	var resp jikanByIDResponse
	if err := t.do(ctx, u, &resp); err != nil {
		return nil, err
	}
	c := toCandidate(resp.Data)
	return &c, nil
}

func (t *JikanTransport) GetAnimeFullByID(ctx context.Context, malID int64) (*models.MALMetadata, error) {
	u := fmt.Sprintf("%s/anime/%d/full", jikanBase, malID)
	var resp jikanByIDResponse
	if err := t.do(ctx, u, &resp); err != nil {
		return nil, err
	}
	return toMetadata(resp.Data), nil
}

func toCandidate(a jikanAnime) models.MALCandidate {
	year := a.Year
	if year == 0 {
		year = a.Aired.Prop.From.Year
	}
	return models.MALCandidate{
		MALID:         a.MalID,
		TitleEnglish:  a.TitleEnglish,
		TitleRomaji:   a.Title,
		TitleJapanese: a.TitleJapanese,
		Year:          year,
		TotalEpisodes: a.Episodes,
		CoverURL:      a.Images.JPG.ImageURL,
	}
}

func toMetadata(a jikanAnime) *models.MALMetadata {
	year := a.Year
	if year == 0 {
		year = a.Aired.Prop.From.Year
	}
	genres := make([]string, 0, len(a.Genres))
	for _, g := range a.Genres {
		genres = append(genres, g.Name)
	}
	studios := make([]string, 0, len(a.Studios))
	for _, s := range a.Studios {
		studios = append(studios, s.Name)
	}
	return &models.MALMetadata{
		MALID:         a.MalID,
		TitleEnglish:  a.TitleEnglish,
		TitleRomaji:   a.Title,
		TitleJapanese: a.TitleJapanese,
		Synopsis:      a.Synopsis,
		Type:          a.Type,
		TotalEpisodes: a.Episodes,
		Status:        a.Status,
		Score:         a.Score,
		Rank:          a.Rank,
		Year:          year,
		Season:        a.Season,
		Genres:        genres,
		Studios:       studios,
		CoverURL:      a.Images.JPG.ImageURL,
		CoverURLLarge: a.Images.JPG.LargeImageURL,
	}
}
