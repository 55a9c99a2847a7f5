package resolvers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
)

var (
	linksBlockRe = regexp.MustCompile(`links\s*[:=]\s*\{([^}]*)\}`)
	hlsFieldRe   = regexp.MustCompile(`(hls2|hls4|hls3)\s*[:=]\s*['"]([^'"]+)['"]`)
	bareM3U8Re   = regexp.MustCompile(`https?://[^\s'"]+\.m3u8[^\s'"]*`)
	streamInfRe  = regexp.MustCompile(`(?m)^#EXT-X-STREAM-INF:.*\n(\S+)`)
)

// ResolvePackedJS follows the redirect chain, locates a Dean-Edwards
// packed block, extracts the hls2/hls4/hls3 priority links (or a bare
// m3u8 URL as last resort), and resolves the returned master playlist
// down to its first sub-playlist.
func ResolvePackedJS(ctx context.Context, embedURL string) (*Result, error) {
	html, finalURL, err := fetchPage(ctx, embedURL, embedURL)
	if err != nil {
		return nil, err
	}

	unpacked, err := unpackFromHTML(html)
	if err != nil {
		// Page may already be unpacked (no eval wrapper); fall through
		// and search the raw HTML for link fields instead.
		unpacked = html
	}

	masterURL := extractHLSLink(unpacked)
	if masterURL == "" {
		return nil, fmt.Errorf("packedjs: no hls link found")
	}
	masterURL = absolutise(finalURL, masterURL)

	sub, err := resolveMasterPlaylist(ctx, masterURL)
	if err != nil || sub == "" {
		return &Result{DirectURL: masterURL}, nil
	}
	return &Result{DirectURL: sub}, nil
}

func extractHLSLink(text string) string {
	if block := linksBlockRe.FindStringSubmatch(text); block != nil {
		fields := hlsFieldRe.FindAllStringSubmatch(block[1], -1)
		best := map[string]string{}
		for _, f := range fields {
			best[f[1]] = f[2]
		}
		for _, key := range []string{"hls2", "hls4", "hls3"} {
			if v, ok := best[key]; ok {
				return v
			}
		}
	}
	if m := bareM3U8Re.FindString(text); m != "" {
		return m
	}
	return ""
}

func resolveMasterPlaylist(ctx context.Context, masterURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, masterURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	m := streamInfRe.FindStringSubmatch(string(body))
	if m == nil {
		return "", nil
	}
	return absolutise(masterURL, m[1]), nil
}

func fetchPage(ctx context.Context, pageURL, referer string) (html, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	req.Header.Set("Referer", referer)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", "", err
	}
	return string(body), resp.Request.URL.String(), nil
}

func absolutise(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
