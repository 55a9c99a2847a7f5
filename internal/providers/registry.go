// Package providers loads provider configuration (selectors, URL
// templates, domain families) as data and exposes a generic scraper that
// is driven entirely by that configuration. Defining the selectors
// themselves is out of scope here; this package only supplies the engine.
package providers

import (
	"embed"
	"encoding/json"
	"fmt"

	"mangahub/pkg/models"
)

//go:embed providers.json
var defaultConfigFS embed.FS

// Registry holds the loaded provider configs keyed by name.
type Registry struct {
	byName map[string]models.ProviderConfig
	order  []string
}

// LoadDefault loads the embedded default provider configuration. Load
// accepts any other JSON list of the same shape; the shipped binaries
// only use this embedded default.
func LoadDefault() (*Registry, error) {
	b, err := defaultConfigFS.ReadFile("providers.json")
	if err != nil {
		return nil, fmt.Errorf("providers: read embedded config: %w", err)
	}
	return Load(b)
}

func Load(jsonBytes []byte) (*Registry, error) {
	var list []models.ProviderConfig
	if err := json.Unmarshal(jsonBytes, &list); err != nil {
		return nil, fmt.Errorf("providers: decode config: %w", err)
	}
	r := &Registry{byName: make(map[string]models.ProviderConfig, len(list))}
	for _, p := range list {
		r.byName[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r, nil
}

func (r *Registry) Get(name string) (models.ProviderConfig, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) All() []models.ProviderConfig {
	out := make([]models.ProviderConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// DomainMatches reports whether host belongs to the provider's known
// domain family, used to discard covers/candidates whose images were
// served from an unrelated CDN.
func DomainMatches(p models.ProviderConfig, host string) bool {
	for _, d := range p.DomainFamily {
		if d == host || hasSuffixDot(host, d) {
			return true
		}
	}
	return false
}

func hasSuffixDot(host, domain string) bool {
	if len(host) <= len(domain) {
		return false
	}
	return host[len(host)-len(domain):] == domain && host[len(host)-len(domain)-1] == '.'
}
