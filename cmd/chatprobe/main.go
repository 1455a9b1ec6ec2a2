// Command chatprobe sends a fixed list of questions through the configured
// generation provider and records latency and output for each.
//
// Environment:
//
//	CHATPROBE_QUERIES      queries file (default queries.json)
//	CHATPROBE_ONLY         comma list of 1-based indexes or substrings
//	CHATPROBE_TIMEOUT_SEC  per query timeout (default 60)
//	CHATPROBE_SLEEP_MS     pause between queries (default 600)
//	CHATPROBE_OUT          results directory (default cmd/chatprobe/results)
//
// Provider settings come from the usual server configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ChatHub/pkg/config"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"
)

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(envOr(key, "")); err == nil && v >= 0 {
		return v
	}
	return def
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !cfg.LLM.HasCredential() {
		fmt.Printf("[warn] no credential for provider %q; every query will fail\n", cfg.LLM.Provider)
	}

	data, err := os.ReadFile(envOr("CHATPROBE_QUERIES", "queries.json"))
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	queries, err := parseQueries(data)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	only := envOr("CHATPROBE_ONLY", "")
	if filtered := filterQueries(queries, only); len(filtered) != len(queries) {
		fmt.Printf("[filter] CHATPROBE_ONLY active -> running %d selected queries\n", len(filtered))
		queries = filtered
	}

	gen, err := services.NewGenerator(cfg.LLM, log)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	proxy := services.NewChatProxy(cfg.LLM, gen, log)

	timeout := time.Duration(envInt("CHATPROBE_TIMEOUT_SEC", 60)) * time.Second
	pause := time.Duration(envInt("CHATPROBE_SLEEP_MS", 600)) * time.Millisecond

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	summary := RunSummary{
		RunID:        fmt.Sprintf("probe-%s-%s", started.Format("20060102-150405"), uuid.NewString()[:8]),
		StartedAt:    started.Format(time.RFC3339),
		Env:          cfg.AppEnv,
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		Only:         only,
		TotalQueries: len(queries),
	}

	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		res := runOnce(ctx, proxy, q, timeout)
		if res.Error != "" {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
		fmt.Printf("[%d/%d] %s -> %s first=%dms total=%dms\n",
			i+1, len(queries), truncate(q, 64), res.State, res.FirstFragMs, res.DurationMs)
		if i < len(queries)-1 {
			time.Sleep(pause)
		}
	}
	summary.EndedAt = time.Now().Format(time.RFC3339)

	outDir := envOr("CHATPROBE_OUT", filepath.Join("cmd", "chatprobe", "results"))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Println("failed to create results dir:", err)
		os.Exit(1)
	}
	stamp := started.Format("20060102-150405")
	jsonPath := filepath.Join(outDir, fmt.Sprintf("chatprobe-%s.json", stamp))
	csvPath := filepath.Join(outDir, fmt.Sprintf("chatprobe-%s.csv", stamp))
	if err := writeJSON(jsonPath, summary); err != nil {
		fmt.Println("failed to write JSON:", err)
		os.Exit(1)
	}
	if err := writeCSV(csvPath, summary.Results); err != nil {
		fmt.Println("failed to write CSV:", err)
		os.Exit(1)
	}

	fmt.Println("\nSaved:")
	fmt.Println(" -", jsonPath)
	fmt.Println(" -", csvPath)
}
