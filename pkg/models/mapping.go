package models

import "time"

// Mapping is the identity record tying one anime to a MAL id, a cover
// perceptual hash, and one slug per known provider.
type Mapping struct {
	MALID          int64             `json:"mal_id"`
	TitleMain      string            `json:"title_main"`
	ProviderSlugs  map[string]string `json:"provider_slugs"` // provider name -> slug
	PHashV1        string            `json:"phash_v1,omitempty"`
	ReleaseYear    int               `json:"release_year,omitempty"`
	TotalEpisodes  int               `json:"total_episodes,omitempty"`
	LastSync       time.Time         `json:"last_sync"`
}

// SlugFor returns the slug this mapping holds for a given provider, if any.
func (m *Mapping) SlugFor(provider string) (string, bool) {
	if m == nil || m.ProviderSlugs == nil {
		return "", false
	}
	s, ok := m.ProviderSlugs[provider]
	return s, ok
}
