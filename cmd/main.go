package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-call-insight-service/internal/api/httpapi"
	"ai-call-insight-service/internal/config"
	"ai-call-insight-service/internal/events"
	"ai-call-insight-service/internal/keyword"
	"ai-call-insight-service/internal/observability"
	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/orchestrator"
	"ai-call-insight-service/internal/registry"
	"ai-call-insight-service/internal/storage"
	"ai-call-insight-service/internal/stt"
	googlestt "ai-call-insight-service/internal/stt/google"
	"ai-call-insight-service/internal/stt/mock"
	"ai-call-insight-service/internal/stt/openai"
	"ai-call-insight-service/internal/transcript"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	logger := logging.Logger()

	// Metrics and health probes on a separate port.
	obsServer := observability.NewServer(":" + cfg.Service.MetricsPort)
	obsServer.Start()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize audio store")
	}

	transcriber, closeTranscriber, err := newTranscriber(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize transcriber")
	}
	defer closeTranscriber()
	logger.Info().Str("provider", transcriber.Name()).Msg("Transcription provider selected")

	// Optional Kafka mirror of the in-process event stream.
	publisher := events.NewPublisher(&events.PublisherConfig{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.EventsTopic,
		Principal: cfg.Kafka.Principal,
	})
	defer publisher.Close()

	bus := events.NewBus(publisher)
	assembler := transcript.NewAssembler()

	rules, err := newRuleSource(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Keyword.RulesFile).Msg("Failed to load keyword rules")
	}
	detector := keyword.NewDetector(rules)

	orch := orchestrator.New(orchestrator.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BackoffBase: cfg.Retry.BackoffBase,
		CallTimeout: cfg.Retry.CallTimeout,
		IdleTimeout: cfg.Retry.IdleTimeout,
		Language:    cfg.STT.Language,
	}, transcriber, blobs, assembler, detector, bus)

	reg := registry.NewRegistry(registry.Config{
		HeartbeatInterval: cfg.Registry.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Registry.HeartbeatTimeout,
	}, bus)

	api := httpapi.New(assembler, orch, blobs, reg)
	server := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           api.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("Call insight service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()
	obsServer.SetReady(true)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutting down")
	obsServer.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	reg.Shutdown()
	if err := orch.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Orchestrator shutdown incomplete")
	}
	if err := obsServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Observability shutdown incomplete")
	}
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "disk":
		return storage.NewDiskStore(cfg.Storage.Dir)
	default:
		return storage.NewMemoryStore(), nil
	}
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, func(), error) {
	noop := func() {}
	switch cfg.STT.Provider {
	case "openai":
		return openai.New(cfg.STT.APIKey, cfg.STT.Model), noop, nil
	case "google":
		client, err := googlestt.New(context.Background(), int32(cfg.STT.SampleRateHz))
		if err != nil {
			return nil, noop, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		return mock.New(), noop, nil
	}
}

func newRuleSource(cfg *config.Config) (keyword.RuleSource, error) {
	if cfg.Keyword.RulesFile != "" {
		return keyword.LoadRulesFile(cfg.Keyword.RulesFile)
	}
	return keyword.NewStaticSource(keyword.DefaultRules()), nil
}
