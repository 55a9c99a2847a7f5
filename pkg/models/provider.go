package models

// ProviderConfig is the structural, non-selector-secret facts about one
// scraped provider. Actual CSS selectors live here too, but as data loaded
// from config, never hard-coded per anime.
type ProviderConfig struct {
	Name                 string   `json:"name"`
	DomainFamily         []string `json:"domain_family"`
	SearchURLTemplate    string   `json:"search_url_template"` // %s = query
	EpisodeURLTemplate   string   `json:"episode_url_template"` // %s = slug, %d = episode
	CardSelector         string   `json:"card_selector"`
	CardTitleSelector    string   `json:"card_title_selector"`
	CardCoverSelector    string   `json:"card_cover_selector"`
	CardSlugAttr         string   `json:"card_slug_attr"`
	DetailTitleSelector  string   `json:"detail_title_selector"`
	DetailCoverSelector  string   `json:"detail_cover_selector"`
	DetailYearSelector   string   `json:"detail_year_selector"`
	DetailEpisodeSelector string  `json:"detail_episode_selector"`
	ServerListSelector   string   `json:"server_list_selector"`
	UsesRomajiFullTitles bool     `json:"uses_romaji_full_titles"`
}
