// Package proxy implements the stream proxy of SPEC_FULL §4.10: a single
// range-forwarding GET /proxy endpoint plus HLS playlist rewriting, so the
// browser never talks to a CDN or durable-store URL directly.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const userAgent = "Mozilla/5.0 (compatible; mangahub-proxy/1.0)"

type Options struct {
	ProxyBaseURL    string
	DurableStoreHost string // hostname (or suffix) of the durable-store resolve endpoint requiring two-hop resolution
}

type Proxy struct {
	opts Options
	http *http.Client
}

func New(opts Options) *Proxy {
	return &Proxy{
		opts: opts,
		http: &http.Client{
			Timeout: 0,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// RegisterRoutes wires GET /proxy and GET /health.
func (p *Proxy) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/proxy", p.handle)
	r.OPTIONS("/proxy", func(c *gin.Context) {
		applyCORS(c)
		c.Status(http.StatusNoContent)
	})
}

func (p *Proxy) handle(c *gin.Context) {
	applyCORS(c)

	raw := c.Query("url")
	target, err := url.Parse(raw)
	if err != nil || !target.IsAbs() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid url parameter"})
		return
	}

	resolved, err := p.resolveTwoHop(c.Request.Context(), target)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if isPlaylistURL(resolved.String()) {
		p.servePlaylist(c, resolved)
		return
	}
	p.serveRange(c, resolved)
}

// resolveTwoHop implements SPEC_FULL §4.10's two-hop resolution: when the
// target hostname matches the durable store, a HEAD with redirects
// followed discovers the final CDN URL before the real GET is issued,
// since one extra redirect hop in the middle of a range response breaks
// seeking on some CDNs.
func (p *Proxy) resolveTwoHop(ctx context.Context, target *url.URL) (*url.URL, error) {
	if p.opts.DurableStoreHost == "" || !strings.HasSuffix(target.Hostname(), p.opts.DurableStoreHost) {
		return target, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build head request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve durable store url: %w", err)
	}
	defer resp.Body.Close()

	return resp.Request.URL, nil
}

func (p *Proxy) serveRange(c *gin.Context, target *url.URL) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	req.Header.Set("User-Agent", userAgent)
	if rng := c.GetHeader("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream connect failed"})
		return
	}
	defer resp.Body.Close()

	for _, h := range []string{"Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Disposition", "inline")
	c.Header("Content-Type", contentTypeFor(target.String(), resp.Header.Get("Content-Type")))

	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

// servePlaylist implements SPEC_FULL §4.10's HLS rewriting: fetch the
// text, leave comments and blank lines intact, absolutise relative URIs,
// and rewrite every non-comment URI to point back through this proxy.
// Recursion terminates naturally at segment URIs once they're no longer
// playlists.
func (p *Proxy) servePlaylist(c *gin.Context, target *url.URL) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream connect failed"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Status(resp.StatusCode)
		return
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		abs := absolutise(target, trimmed)
		out.WriteString(p.proxyURL(abs))
		out.WriteByte('\n')
	}

	c.Header("Content-Type", "application/vnd.apple.mpegurl")
	c.String(http.StatusOK, out.String())
}

func (p *Proxy) proxyURL(target string) string {
	return p.opts.ProxyBaseURL + "/proxy?url=" + url.QueryEscape(target)
}

func absolutise(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

func isPlaylistURL(u string) bool {
	return strings.Contains(strings.ToLower(u), ".m3u8")
}

func contentTypeFor(targetURL, upstreamType string) string {
	lower := strings.ToLower(upstreamType)
	if strings.Contains(lower, "mpegurl") || isPlaylistURL(targetURL) {
		return "application/vnd.apple.mpegurl"
	}
	return "video/mp4"
}

func applyCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
	c.Header("Access-Control-Allow-Methods", "GET,HEAD,OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Range")
}
