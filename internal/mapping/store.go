// Package mapping persists and queries the identity record tying an
// anime's MAL id to its per-provider slugs and cover perceptual hash.
package mapping

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mangahub/internal/phash"
	"mangahub/pkg/models"
)

type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// UpsertFields carries only the fields a caller actually knows; nil means
// "leave whatever is already stored alone." TitleMain overwrites
// unconditionally since it's always known at upsert time.
type UpsertFields struct {
	MALID         int64
	TitleMain     string
	ProviderSlug  map[string]string // merged into existing, never replaces wholesale
	PHashV1       *string
	ReleaseYear   *int
	TotalEpisodes *int
}

// Upsert performs the field-wise coalescing upsert of SPEC_FULL §4.4:
// supplied non-null fields overwrite, nulls preserve existing values,
// provider slugs merge key-by-key, last_sync always advances. Grounded on
// internal/scraper/persist.go's ON CONFLICT(id) DO UPDATE shape,
// generalised from unconditional overwrite to per-column COALESCE.
func (s *Store) Upsert(ctx context.Context, f UpsertFields) (*models.Mapping, error) {
	existing, err := s.ByMALID(ctx, f.MALID)
	if err != nil {
		return nil, fmt.Errorf("mapping: load existing: %w", err)
	}

	slugs := map[string]string{}
	if existing != nil {
		for k, v := range existing.ProviderSlugs {
			slugs[k] = v
		}
	}
	for k, v := range f.ProviderSlug {
		if v != "" {
			slugs[k] = v
		}
	}
	slugsJSON, err := json.Marshal(slugs)
	if err != nil {
		return nil, fmt.Errorf("mapping: marshal slugs: %w", err)
	}

	var phashArg, yearArg, episodesArg any
	if f.PHashV1 != nil {
		phashArg = *f.PHashV1
	} else if existing != nil {
		phashArg = existing.PHashV1
	}
	if f.ReleaseYear != nil {
		yearArg = *f.ReleaseYear
	} else if existing != nil {
		yearArg = existing.ReleaseYear
	}
	if f.TotalEpisodes != nil {
		episodesArg = *f.TotalEpisodes
	} else if existing != nil {
		episodesArg = existing.TotalEpisodes
	}

	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO mapping (mal_id, title_main, provider_slugs, phash_v1, release_year, total_episodes, last_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mal_id) DO UPDATE SET
			title_main     = excluded.title_main,
			provider_slugs = excluded.provider_slugs,
			phash_v1       = COALESCE(excluded.phash_v1, mapping.phash_v1),
			release_year   = COALESCE(excluded.release_year, mapping.release_year),
			total_episodes = COALESCE(excluded.total_episodes, mapping.total_episodes),
			last_sync      = excluded.last_sync
	`, f.MALID, f.TitleMain, string(slugsJSON), phashArg, yearArg, episodesArg, now)
	if err != nil {
		return nil, fmt.Errorf("mapping: upsert: %w", err)
	}

	return s.ByMALID(ctx, f.MALID)
}

func (s *Store) ByMALID(ctx context.Context, malID int64) (*models.Mapping, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT mal_id, title_main, provider_slugs, phash_v1, release_year, total_episodes, last_sync
		FROM mapping WHERE mal_id = ?
	`, malID)
	return scanMapping(row)
}

func (s *Store) BySlug(ctx context.Context, provider, slug string) (*models.Mapping, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT mal_id, title_main, provider_slugs, phash_v1, release_year, total_episodes, last_sync
		FROM mapping
	`)
	if err != nil {
		return nil, fmt.Errorf("mapping: by slug query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		if s, ok := m.SlugFor(provider); ok && s == slug {
			return m, nil
		}
	}
	return nil, rows.Err()
}

// NearestByPHash implements SPEC_FULL §4.4's single-round-trip nearest-hash
// lookup. SQLite has no native popcount, so rows are scanned in Go and the
// smallest distance strictly under threshold wins; the caller-side
// re-verification the spec requires happens for free since this function
// computes (and returns) the exact distance itself.
func (s *Store) NearestByPHash(ctx context.Context, hash string, threshold int) (*models.Mapping, int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT mal_id, title_main, provider_slugs, phash_v1, release_year, total_episodes, last_sync
		FROM mapping WHERE phash_v1 IS NOT NULL
	`)
	if err != nil {
		return nil, -1, fmt.Errorf("mapping: nearest phash query: %w", err)
	}
	defer rows.Close()

	var best *models.Mapping
	bestDist := threshold

	for rows.Next() {
		m, err := scanRows(rows)
		if err != nil {
			return nil, -1, err
		}
		d := phash.Hamming(hash, m.PHashV1)
		if d < 0 {
			continue
		}
		if d < bestDist {
			best = m
			bestDist = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, -1, err
	}
	if best == nil {
		return nil, -1, nil
	}
	// Re-verify on the caller side per spec, even though we computed it ourselves.
	if phash.Hamming(hash, best.PHashV1) != bestDist {
		return nil, -1, nil
	}
	return best, bestDist, nil
}

func scanMapping(row *sql.Row) (*models.Mapping, error) {
	var (
		malID         int64
		titleMain     string
		slugsJSON     string
		phashV1       sql.NullString
		releaseYear   sql.NullInt64
		totalEpisodes sql.NullInt64
		lastSync      time.Time
	)
	if err := row.Scan(&malID, &titleMain, &slugsJSON, &phashV1, &releaseYear, &totalEpisodes, &lastSync); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("mapping: scan: %w", err)
	}
	return buildMapping(malID, titleMain, slugsJSON, phashV1, releaseYear, totalEpisodes, lastSync), nil
}

func scanRows(rows *sql.Rows) (*models.Mapping, error) {
	var (
		malID         int64
		titleMain     string
		slugsJSON     string
		phashV1       sql.NullString
		releaseYear   sql.NullInt64
		totalEpisodes sql.NullInt64
		lastSync      time.Time
	)
	if err := rows.Scan(&malID, &titleMain, &slugsJSON, &phashV1, &releaseYear, &totalEpisodes, &lastSync); err != nil {
		return nil, fmt.Errorf("mapping: scan rows: %w", err)
	}
	return buildMapping(malID, titleMain, slugsJSON, phashV1, releaseYear, totalEpisodes, lastSync), nil
}

func buildMapping(malID int64, titleMain, slugsJSON string, phashV1 sql.NullString, releaseYear, totalEpisodes sql.NullInt64, lastSync time.Time) *models.Mapping {
	slugs := map[string]string{}
	_ = json.Unmarshal([]byte(slugsJSON), &slugs)

	m := &models.Mapping{
		MALID:         malID,
		TitleMain:     titleMain,
		ProviderSlugs: slugs,
		PHashV1:       phashV1.String,
		LastSync:      lastSync,
	}
	if releaseYear.Valid {
		m.ReleaseYear = int(releaseYear.Int64)
	}
	if totalEpisodes.Valid {
		m.TotalEpisodes = int(totalEpisodes.Int64)
	}
	return m
}

// UpsertMALMetadata stores the rich, authoritative MAL record. Unlike the
// mapping's coalescing upsert, this one overwrites unconditionally: Jikan
// is authoritative, so a fresh fetch always wins.
func UpsertMALMetadata(ctx context.Context, db *sql.DB, m *models.MALMetadata) error {
	genresJSON, _ := json.Marshal(m.Genres)
	studiosJSON, _ := json.Marshal(m.Studios)
	_, err := db.ExecContext(ctx, `
		INSERT INTO mal_metadata (mal_id, title_english, title_romaji, title_japanese, synopsis, type,
			total_episodes, status, duration_min, score, rank, year, season, genres, studios, cover_url, cover_url_large)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mal_id) DO UPDATE SET
			title_english = excluded.title_english,
			title_romaji = excluded.title_romaji,
			title_japanese = excluded.title_japanese,
			synopsis = excluded.synopsis,
			type = excluded.type,
			total_episodes = excluded.total_episodes,
			status = excluded.status,
			duration_min = excluded.duration_min,
			score = excluded.score,
			rank = excluded.rank,
			year = excluded.year,
			season = excluded.season,
			genres = excluded.genres,
			studios = excluded.studios,
			cover_url = excluded.cover_url,
			cover_url_large = excluded.cover_url_large
	`, m.MALID, m.TitleEnglish, m.TitleRomaji, m.TitleJapanese, m.Synopsis, m.Type,
		m.TotalEpisodes, m.Status, m.DurationMin, m.Score, m.Rank, m.Year, m.Season,
		string(genresJSON), string(studiosJSON), m.CoverURL, m.CoverURLLarge)
	if err != nil {
		return fmt.Errorf("mal_metadata: upsert: %w", err)
	}
	return nil
}

func GetMALMetadata(ctx context.Context, db *sql.DB, malID int64) (*models.MALMetadata, error) {
	row := db.QueryRowContext(ctx, `
		SELECT mal_id, title_english, title_romaji, title_japanese, synopsis, type,
			total_episodes, status, duration_min, score, rank, year, season, genres, studios, cover_url, cover_url_large
		FROM mal_metadata WHERE mal_id = ?
	`, malID)

	var (
		m            models.MALMetadata
		genresJSON   string
		studiosJSON  string
	)
	if err := row.Scan(&m.MALID, &m.TitleEnglish, &m.TitleRomaji, &m.TitleJapanese, &m.Synopsis, &m.Type,
		&m.TotalEpisodes, &m.Status, &m.DurationMin, &m.Score, &m.Rank, &m.Year, &m.Season,
		&genresJSON, &studiosJSON, &m.CoverURL, &m.CoverURLLarge); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("mal_metadata: scan: %w", err)
	}
	_ = json.Unmarshal([]byte(genresJSON), &m.Genres)
	_ = json.Unmarshal([]byte(studiosJSON), &m.Studios)
	return &m, nil
}
