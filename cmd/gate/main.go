package main

import (
	"context"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ostiary.org/internal/auth"
	"ostiary.org/internal/cluster"
	"ostiary.org/internal/config"
	"ostiary.org/internal/creds"
	"ostiary.org/internal/httpapi"
	"ostiary.org/internal/obs"
	"ostiary.org/internal/store"
	"ostiary.org/internal/store/mem"
	"ostiary.org/internal/store/s3store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	var backend store.Store
	switch cfg.Backend {
	case config.BackendS3:
		s3s, err := s3store.New(ctx, s3store.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatalf("s3 store: %v", err)
		}
		backend = s3s
	default:
		backend = mem.New()
	}
	backend = store.WithTimeout(store.Instrumented(backend, obs.ObserveStoreOp), cfg.StoreTimeout)

	// The cluster client authenticates its own calls with the gateway's
	// internal token. The service does not exist yet, hence the indirection.
	var svc *auth.Service
	cl, err := cluster.NewHTTP(strings.TrimRight(cfg.UpstreamURL, "/")+"/v1",
		cluster.WithTokenSource(func() string {
			if svc == nil {
				return ""
			}
			return svc.InternalToken()
		}),
	)
	if err != nil {
		log.Fatalf("cluster client: %v", err)
	}

	enc, err := creds.ForScheme(cfg.AuthScheme)
	if err != nil {
		log.Fatalf("auth scheme: %v", err)
	}
	svc, err = auth.NewService(backend, cl,
		auth.WithResellerPrefix(cfg.ResellerPrefix),
		auth.WithHashSeed(cfg.HashPathPrefix, cfg.HashPathSuffix),
		auth.WithTokenLife(cfg.TokenLife),
		auth.WithMaxTokenLife(cfg.MaxTokenLife),
		auth.WithStorageURL(cfg.StorageURL),
		auth.WithSuperAdminKey(cfg.SuperAdminKey),
		auth.WithEncoder(enc),
		auth.WithCache(auth.NewCache(cfg.CacheSize, cfg.CacheTTL, auth.WithCacheEvents(obs.CacheEvent))),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("upstream url: %v", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)

	api, err := httpapi.New(httpapi.Options{
		Service:    svc,
		Upstream:   proxy,
		AuthPrefix: cfg.AuthPrefix,
		Version:    version,
		Logger:     obs.Logger(),
		Ready: func(ctx context.Context) error {
			_, err := backend.ListContainers(ctx, "", 1)
			return err
		},
		BodyMaxBytes: cfg.BodyMaxBytes,
		RatePerSec:   cfg.RatePerSec,
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	// No read or write deadline: object transfers stream through the proxy
	// for as long as they need.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting ostiary-gate %s on %s (backend %s)", version, srv.Addr, cfg.Backend)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
