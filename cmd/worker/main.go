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

	"mangahub/internal/archival"
	"mangahub/internal/objectstore"
	"mangahub/internal/webhookauth"
	"mangahub/internal/worker"
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

	queue := archival.NewQueue(db)

	accounts := objectstore.ParseAccounts(cfg.ObjectStoreBuckets, cfg.ObjectStoreAccessKeys, cfg.ObjectStoreSecretKeys)
	targets := make([]objectstore.Target, 0, len(accounts))
	ctx := context.Background()
	for _, acc := range accounts {
		t, err := objectstore.NewS3Storage(ctx, acc)
		if err != nil {
			log.Printf("[worker] skip object store account %s: %v", acc.RepoName, err)
			continue
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		log.Println("[worker] no durable storage accounts configured, archival uploads will fail until OBJECT_STORE_BUCKETS is set")
	}

	w := worker.New(queue, targets, worker.Options{
		Salt:            cfg.Salt,
		ProxyBaseURL:    cfg.ProxyBaseURL,
		APIBaseURL:      "http://localhost:" + cfg.Port,
		PollInterval:    cfg.WorkerPollInterval,
		Concurrency:     cfg.WorkerConcurrency,
		StaleJobTimeout: cfg.StaleJobTimeout,
	})

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	authed := router.Group("/")
	authed.Use(webhookauth.Middleware(cfg.Salt))
	worker.RegisterRoutes(router, w, authed)

	httpSrv := &http.Server{
		Addr:    ":8081",
		Handler: router,
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("archival worker HTTP surface listening on :8081")
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

	log.Println("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	cancelRun()

	wg.Wait()
	log.Println("worker stopped")
}
