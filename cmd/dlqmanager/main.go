// Command dlqmanager replays dead-lettered participation events into the
// outbox and quarantines entries that exhaust their retries.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/config"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/outbox"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence/postgres"
	httptransport "github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind, url, err := persistence.ParseURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("invalid DATABASE_URL: %v", err)
	}
	if kind != persistence.KindPostgres {
		log.Fatalf("dlq manager requires a postgres DATABASE_URL, got %s", kind)
	}

	timeout := cfg.StoreConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	pool, err := postgres.Open(connectCtx, url)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, mux)
	go func() {
		if err := httptransport.Run(ctx, metricsSrv, metricsCfg.ShutdownTimeout); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Printf("DLQ manager started (interval=%s, maxRetries=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)

	for {
		select {
		case <-ctx.Done():
			log.Println("dlq manager received shutdown signal")
			return
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil && ctx.Err() == nil {
				log.Printf("dlq manager error: %v", err)
			} else if processed > 0 {
				log.Printf("dlq manager processed %d entries", processed)
			}
		}
	}
}
