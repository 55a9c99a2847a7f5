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

	"mangahub/internal/proxy"
	"mangahub/pkg/config"
)

func main() {
	cfg := config.Load()

	p := proxy.New(proxy.Options{
		ProxyBaseURL:     cfg.ProxyBaseURL,
		DurableStoreHost: os.Getenv("DURABLE_STORE_HOST"),
	})

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	p.RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr:    ":8082",
		Handler: router,
	}

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("stream proxy listening on :8082")
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

	log.Println("shutting down stream proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("stream proxy stopped")
}
