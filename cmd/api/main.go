package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mangahub/internal/api"
	"mangahub/internal/archival"
	"mangahub/internal/homefeed"
	"mangahub/internal/mal"
	"mangahub/internal/mapping"
	"mangahub/internal/providers"
	"mangahub/internal/resolver"
	"mangahub/internal/streaming"
	"mangahub/pkg/config"
	"mangahub/pkg/database"
)

func main() {
	cfg := config.Load()

	dbCfg := database.DefaultConfig()
	db := database.MustOpen(dbCfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	registry, err := providers.LoadDefault()
	if err != nil {
		log.Fatalf("load provider registry failed: %v", err)
	}

	store := mapping.NewStore(db)
	malClient := mal.New(mal.NewJikanTransport(), cfg.MALThrottle, cfg.SimilarityThresh)
	resolv := resolver.New(store, malClient, registry, resolver.Options{
		PHashThreshold:   cfg.PHashThreshold,
		SimilarityThresh: cfg.SimilarityThresh,
		EpisodeTolerance: cfg.EpisodeTolerance,
	})

	queue := archival.NewQueue(db)
	streamSvc := streaming.New(registry, queue, streaming.Options{
		ProxyBaseURL:  cfg.ProxyBaseURL,
		WorkerBaseURL: cfg.WorkerBaseURL,
		Salt:          cfg.Salt,
		CacheTTL:      cfg.ScrapeCacheTTL,
	})

	home := homefeed.New(registry, malClient)

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	handler := api.NewHandler(resolv, store, streamSvc, home, cfg.Salt)
	handler.RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("api server stopped")
}
