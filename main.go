package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pokebridge/internal"
	"pokebridge/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	filter, err := internal.NewFilterEngine(config.Rules, config.RulesStrict, logger)
	if err != nil {
		logger.Fatalf("compile rules: %v", err)
	}

	pubsub, err := internal.NewPubSub(config.Queue)
	if err != nil {
		logger.Fatalf("queue: %v", err)
	}

	var store internal.DeadLetterStore
	var riverStore *internal.RiverDeadLetterStore
	if config.DeadLetter.River.Enabled {
		riverStore, err = internal.NewRiverDeadLetterStore(context.Background(), config.DeadLetter.River)
		if err != nil {
			logger.Fatalf("river dead-letter store: %v", err)
		}
		store = riverStore
		logger.Printf("durable dead-letter queue enabled (queue=%s)", config.DeadLetter.River.Queue)
	}

	deadLetters := internal.NewDeadLetterLog(config.DeadLetter.Capacity, store, logger)
	window := internal.NewDedupWindow(
		config.Scheduler.DedupSize,
		time.Duration(config.Scheduler.DedupTTLMS)*time.Millisecond,
	)
	sink := internal.NewPokeClient(
		config.Sink.URL,
		config.Sink.APIKey,
		time.Duration(config.Sink.TimeoutMS)*time.Millisecond,
	)

	scheduler := internal.NewScheduler(config.Scheduler, pubsub, sink, window, deadLetters, internal.NewLogger("scheduler"))

	enricher := internal.NewEnricher(
		config.Webhook.GitHubToken,
		time.Duration(config.Webhook.EnrichTimeoutMS)*time.Millisecond,
		config.Webhook.IncludeDiff,
		internal.NewLogger("enrich"),
	)

	handler := webhook.NewHandler(webhook.HandlerConfig{
		Secret:       config.Webhook.Secret,
		IncludeDiff:  config.Webhook.IncludeDiff,
		MaxBodyBytes: config.Server.MaxBodyBytes,
		Enricher:     enricher,
		Filter:       filter,
		Scheduler:    scheduler,
		Logger:       internal.NewLogger("webhook"),
	})

	mux := http.NewServeMux()
	mux.Handle(config.Webhook.Path, handler)
	mux.Handle(config.Server.StatusPath, internal.NewStatusHandler(scheduler, deadLetters, window))
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}

	var root http.Handler = mux
	if config.Server.RateLimitRPS > 0 {
		root = internal.NewRateLimitHandler(root, config.Server.RateLimitRPS, config.Server.RateLimitBurst, time.Hour)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s (webhook path %s)", addr, config.Webhook.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	logger.Printf("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	if err := scheduler.Close(); err != nil {
		logger.Printf("scheduler close: %v", err)
	}
	if riverStore != nil {
		riverStore.Close()
	}
}
