// Command seed applies the schema and the default activities to the configured
// store, then prints the roster size of every activity.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/config"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence"
)

func main() {
	cfg := config.Load()
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "store to seed (postgres:// or sqlite://)")
	flag.Parse()

	timeout := 4 * cfg.StoreConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := persistence.Open(ctx, persistence.Config{
		DatabaseURL:    *databaseURL,
		ConnectTimeout: cfg.StoreConnectTimeout,
		Fallback:       false,
	})
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	defer store.Close()

	activities, err := domain.NewService(store.Repository).ListActivities(ctx)
	if err != nil {
		log.Fatalf("seed verification failed: %v", err)
	}

	names := make([]string, 0, len(activities))
	for name := range activities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stdout, "%-20s %d participants\n", name, len(activities[name].Participants))
	}
}
