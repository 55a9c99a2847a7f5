// Package resolvers implements the per-host embed-URL resolution of
// SPEC_FULL §4.5: each resolver turns a provider's embed URL into a direct
// playable URL, or returns none without ever panicking the caller's
// request.
package resolvers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var httpClient = &http.Client{
	Timeout: 20 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return http.ErrUseLastResponse
		}
		return nil
	},
}

// Result is what a host resolver yields: a direct URL plus whether this
// host family requires the *embed* URL (not the resolved URL) to be
// persisted for later re-resolution from the archival worker's own
// network, per SPEC_FULL §4.7's download-URL policy.
type Result struct {
	DirectURL      string
	RequiresEmbedEnqueue bool
}

// Resolver maps one embed URL to a direct playable URL.
type Resolver func(ctx context.Context, embedURL string) (*Result, error)

var dispatch = map[string]Resolver{}

func register(hostSuffixes []string, r Resolver) {
	for _, h := range hostSuffixes {
		dispatch[h] = r
	}
}

func init() {
	register([]string{"mirrorplay.io", "streamhide.to"}, ResolvePackedJS)
	register([]string{"kotakanimeid.com"}, ResolveCloudSPA)
	register([]string{"vidhidepro.com", "vidhidefast.com", "callistanise.com"}, ResolveRemoteAPI)
	register([]string{"filemoon.sx", "mp4upload.com"}, ResolvePlayerConfig)
}

// Resolve dispatches an embed URL to its host-specific resolver by
// hostname suffix. Unknown hosts return nil, nil rather than an error,
// since an unresolvable mirror should not fail the whole streaming
// response.
func Resolve(ctx context.Context, embedURL string) (*Result, error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return nil, nil
	}
	host := strings.ToLower(u.Hostname())

	for suffix, r := range dispatch {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
			defer cancel()
			res, err := r(ctx, embedURL)
			if err != nil {
				return nil, nil
			}
			return res, nil
		}
	}
	return nil, nil
}
