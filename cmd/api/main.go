package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/api"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/config"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/outbox"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence"
	httptransport "github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publishEvents := len(cfg.KafkaBrokers) > 0
	store, err := persistence.Open(ctx, persistence.Config{
		DatabaseURL:         cfg.DatabaseURL,
		ConnectTimeout:      cfg.StoreConnectTimeout,
		Fallback:            cfg.StoreFallback,
		ParticipationEvents: publishEvents,
	})
	if err != nil {
		log.Fatalf("failed to open activity store: %v", err)
	}
	defer store.Close()

	var dispatcher *outbox.Dispatcher
	if publishEvents && store.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher = outbox.NewDispatcher(outbox.NewPostgresStore(store.Pool, cfg.DLQBaseDelay), producer,
			cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithMaxAttempts(cfg.OutboxMaxAttempts))
		go dispatcher.Start(ctx)
		log.Printf("publishing participation events to %v", cfg.KafkaBrokers)
	}

	service := domain.NewService(store.Repository)

	mux := http.NewServeMux()
	api.NewHandler(service).RegisterRoutes(mux)
	api.RegisterStatic(mux, cfg.StaticDir)
	mux.Handle("GET /metrics", promhttp.Handler())

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, httptransport.Chain(mux,
		httptransport.RequestLogger(nil),
		httptransport.CORS(cfg.CORSAllowedOrigin),
	))

	if err := httptransport.Run(ctx, server, serverCfg.ShutdownTimeout); err != nil {
		log.Printf("server error: %v", err)
	}

	stop()
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
