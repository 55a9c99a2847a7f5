package resolvers

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
)

var dataPageAttrRe = regexp.MustCompile(`data-page="([^"]+)"`)

// ResolveCloudSPA handles hosts that render an HTML-entity-encoded JSON
// blob into a data-page attribute (the common Inertia.js-style pattern),
// decoding entities then walking to props.url.
func ResolveCloudSPA(ctx context.Context, embedURL string) (*Result, error) {
	body, _, err := fetchPage(ctx, embedURL, embedURL)
	if err != nil {
		return nil, err
	}

	m := dataPageAttrRe.FindStringSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("cloudspa: no data-page attribute found")
	}
	decoded := html.UnescapeString(m[1])

	var payload struct {
		Props struct {
			URL string `json:"url"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, fmt.Errorf("cloudspa: decode json: %w", err)
	}
	if payload.Props.URL == "" {
		return nil, fmt.Errorf("cloudspa: empty props.url")
	}
	return &Result{DirectURL: payload.Props.URL}, nil
}
