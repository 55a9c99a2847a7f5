// Package streaming implements the per-episode enrichment pipeline of
// SPEC_FULL §4.7: scrape every provider's server list, resolve each embed
// through C5, check the durable store, and enqueue anything missing for
// archival.
package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"mangahub/internal/archival"
	"mangahub/internal/providers"
	"mangahub/internal/resolvers"
	"mangahub/pkg/models"
)

type Options struct {
	ProxyBaseURL  string
	WorkerBaseURL string
	Salt          string
	CacheTTL      time.Duration
}

type Service struct {
	registry *providers.Registry
	queue    *archival.Queue
	cache    *cache
	opts     Options
	http     *http.Client
}

func New(registry *providers.Registry, queue *archival.Queue, opts Options) *Service {
	return &Service{
		registry: registry,
		queue:    queue,
		cache:    newCache(opts.CacheTTL),
		opts:     opts,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// GetStreaming implements get_streaming(mapping, episode) -> per-provider
// streaming server list. A cache hit reuses the scraped server list but
// never short-circuits the per-server store check and enqueue below.
func (s *Service) GetStreaming(ctx context.Context, m *models.Mapping, episode int) ([]models.StreamingServer, error) {
	cacheKey := fmt.Sprintf("%d:%d", m.MALID, episode)

	servers, ok := s.cache.get(cacheKey)
	if !ok {
		var err error
		servers, err = s.scrapeAndResolve(ctx, m, episode)
		if err != nil {
			return nil, err
		}
		s.cache.set(cacheKey, servers)
	}

	var wg sync.WaitGroup
	out := make([]models.StreamingServer, len(servers))
	for i, srv := range servers {
		wg.Add(1)
		go func(i int, srv models.StreamingServer) {
			defer wg.Done()
			out[i] = s.enrich(ctx, m.MALID, episode, srv)
		}(i, srv)
	}
	wg.Wait()
	return out, nil
}

// InvalidateCache implements SPEC_FULL §4.7's cache-invalidation endpoint.
func (s *Service) InvalidateCache(malID int64, episode int) {
	s.cache.invalidate(fmt.Sprintf("%d:%d", malID, episode))
}

func (s *Service) scrapeAndResolve(ctx context.Context, m *models.Mapping, episode int) ([]models.StreamingServer, error) {
	type scraped struct {
		servers []models.StreamingServer
	}
	results := make(chan scraped, len(m.ProviderSlugs))
	var wg sync.WaitGroup

	for providerName, slug := range m.ProviderSlugs {
		wg.Add(1)
		go func(providerName, slug string) {
			defer wg.Done()
			p, ok := s.registry.Get(providerName)
			if !ok {
				return
			}
			list, err := providers.FetchEpisodeServers(ctx, p, slug, episode)
			if err != nil {
				log.Printf("[streaming] scrape %s/%s ep%d failed: %v", providerName, slug, episode, err)
				return
			}
			results <- scraped{servers: list}
		}(providerName, slug)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.StreamingServer
	for r := range results {
		all = append(all, r.servers...)
	}

	var rwg sync.WaitGroup
	for i := range all {
		rwg.Add(1)
		go func(i int) {
			defer rwg.Done()
			res, err := resolvers.Resolve(ctx, all[i].EmbedURL)
			if err != nil || res == nil {
				return
			}
			all[i].ResolvedURL = res.DirectURL
			all[i].IsEmbedOnly = res.RequiresEmbedEnqueue
		}(i)
	}
	rwg.Wait()

	return all, nil
}

func (s *Service) enrich(ctx context.Context, malID int64, episode int, srv models.StreamingServer) models.StreamingServer {
	stored, err := s.queue.StoreByKey(ctx, malID, episode, srv.Provider, srv.Resolution)
	if err != nil {
		log.Printf("[streaming] store lookup failed: %v", err)
	}
	if stored != nil {
		srv.ResolvedURL = stored.DirectURL
		srv.StreamURL = s.proxyURL(stored.DirectURL)
		return srv
	}

	if srv.ResolvedURL != "" {
		srv.StreamURL = s.proxyURL(srv.ResolvedURL)
	}

	inProgress, err := s.queue.ExistsInProgress(ctx, malID, episode, srv.Provider, srv.Resolution)
	if err != nil {
		log.Printf("[streaming] in-progress check failed: %v", err)
		return srv
	}
	if inProgress {
		return srv
	}

	downloadURL := srv.ResolvedURL
	if srv.IsEmbedOnly || downloadURL == "" {
		downloadURL = srv.EmbedURL
	}
	if downloadURL == "" {
		return srv
	}

	if _, err := s.queue.Enqueue(ctx, malID, episode, srv.Provider, downloadURL, srv.Resolution); err != nil {
		log.Printf("[streaming] enqueue failed: %v", err)
		return srv
	}

	s.triggerWorker(malID, episode, srv.Provider, downloadURL, srv.Resolution)
	return srv
}

func (s *Service) proxyURL(target string) string {
	if target == "" {
		return ""
	}
	return s.opts.ProxyBaseURL + "/proxy?url=" + url.QueryEscape(target)
}

// triggerWorker fires the archival webhook as a detached goroutine with
// its own short timeout; errors are logged and swallowed since the
// worker's scheduled poller (§4.9) is the durable path. Grounded on the
// teacher's internal/notify.Server.sendWithRetry fire-and-swallow control
// flow (spawn, attempt, log-and-drop) though the transport here is an HTTP
// POST, not the teacher's UDP socket.
func (s *Service) triggerWorker(malID int64, episode int, provider, videoURL, resolution string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		body, err := json.Marshal(map[string]any{
			"mal_id": malID, "episode": episode, "provider": provider,
			"video_url": videoURL, "resolution": resolution,
		})
		if err != nil {
			log.Printf("[streaming] webhook marshal failed: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.WorkerBaseURL+"/trigger", bytes.NewReader(body))
		if err != nil {
			log.Printf("[streaming] webhook request build failed: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.opts.Salt)

		resp, err := s.http.Do(req)
		if err != nil {
			log.Printf("[streaming] webhook trigger failed (worker cold start expected): %v", err)
			return
		}
		defer resp.Body.Close()
	}()
}
