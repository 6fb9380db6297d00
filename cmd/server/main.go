package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scte35-inserter/internal/inserter"
	"scte35-inserter/internal/platform/config"
	"scte35-inserter/internal/platform/logger"
	"scte35-inserter/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	streamsFile := config.GetEnv("STREAMS_FILE", inserter.DefaultStreamsFile)
	concurrency := config.GetEnvInt("DOWNLOAD_CONCURRENCY", inserter.DefaultDownloadConcurrency)
	fetchTimeout := config.GetEnvDuration("FETCH_TIMEOUT", inserter.DefaultFetchTimeout)

	log := logger.New(logLevel, logFormat)

	store := inserter.NewFileStore(streamsFile)
	fetcher := inserter.NewHTTPFetcher(fetchTimeout)
	syncer := inserter.NewSegmentSynchronizer(concurrency, log)
	met := metrics.New()
	registry := inserter.NewStreamRegistry(store, fetcher, syncer, inserter.SpliceEncoder{}, log, met)
	h := inserter.NewHandler(registry, log, met)

	if err := registry.Restore(); err != nil {
		log.Error("restoring persisted streams failed", "error", err)
	}

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetRunningStreams(registry.RunningCount()) }).ServeHTTP(w, r)
	})
	r.Route("/api/streams", func(r chi.Router) {
		r.Get("/", h.ListStreams)
		r.Post("/", h.RegisterStream)
		r.Get("/{stream_id}", h.GetStreamStatus)
		r.Delete("/{stream_id}", h.RemoveStream)
	})
	r.Get("/output/{stream_id}/{filename}", h.ServeOutput)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"streams_file", streamsFile,
		"download_concurrency", concurrency,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	registry.Shutdown(ctx)

	log.Info("server stopped")
}
