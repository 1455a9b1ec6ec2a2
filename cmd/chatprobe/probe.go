package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ChatHub/pkg/services"
)

type ResultItem struct {
	Query       string `json:"query"`
	Response    string `json:"response"`
	Error       string `json:"error,omitempty"`
	State       string `json:"state"`
	Fragments   int    `json:"fragments"`
	FirstFragMs int64  `json:"first_fragment_ms"`
	DurationMs  int64  `json:"duration_ms"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Timestamp   string `json:"timestamp"`
}

type RunSummary struct {
	RunID        string       `json:"run_id"`
	StartedAt    string       `json:"started_at"`
	EndedAt      string       `json:"ended_at"`
	Env          string       `json:"env"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Only         string       `json:"only,omitempty"`
	TotalQueries int          `json:"total_queries"`
	Failed       int          `json:"failed"`
	Results      []ResultItem `json:"results"`
}

// parseQueries accepts either ["q1", "q2", ...] or [{"q": "..."}, ...].
func parseQueries(data []byte) ([]string, error) {
	var arrAny []any
	if err := json.Unmarshal(data, &arrAny); err != nil {
		return nil, fmt.Errorf("invalid queries file: %w", err)
	}
	out := make([]string, 0, len(arrAny))
	for _, v := range arrAny {
		var q string
		switch t := v.(type) {
		case string:
			q = t
		case map[string]any:
			q, _ = t["q"].(string)
		}
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("queries file is empty or malformed")
	}
	return out, nil
}

// filterQueries keeps the queries selected by only: a comma list of 1-based
// indexes and case-insensitive substrings. No match keeps everything.
func filterQueries(queries []string, only string) []string {
	if strings.TrimSpace(only) == "" {
		return queries
	}
	wantedIdx := map[int]bool{}
	var subs []string
	for _, tok := range strings.Split(only, ",") {
		v := strings.ToLower(strings.TrimSpace(tok))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			if n >= 1 && n <= len(queries) {
				wantedIdx[n-1] = true
			}
			continue
		}
		subs = append(subs, v)
	}

	var filtered []string
	for i, q := range queries {
		if wantedIdx[i] {
			filtered = append(filtered, q)
			continue
		}
		ql := strings.ToLower(q)
		for _, sub := range subs {
			if strings.Contains(ql, sub) {
				filtered = append(filtered, q)
				break
			}
		}
	}
	if len(filtered) == 0 {
		return queries
	}
	return filtered
}

// runOnce streams one query through the proxy and records what arrived.
func runOnce(ctx context.Context, proxy *services.ChatProxy, q string, timeout time.Duration) ResultItem {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := ResultItem{
		Query:     q,
		Provider:  proxy.Provider(),
		Model:     proxy.Model(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	h, err := proxy.Prepare([]services.ChatMessage{{Role: "user", Content: q}})
	if err != nil {
		res.Error = err.Error()
		res.State = services.StateFailed.String()
		return res
	}

	var b strings.Builder
	t0 := time.Now()
	state := proxy.Stream(ctx, h, func(f services.Frame) error {
		switch f.Kind {
		case services.FrameData:
			if res.Fragments == 0 {
				res.FirstFragMs = time.Since(t0).Milliseconds()
			}
			res.Fragments++
			b.WriteString(f.Text)
		case services.FrameError:
			res.Error = f.Text
		}
		return nil
	})
	if state == services.StateCancelled && res.Error == "" {
		res.Error = fmt.Sprintf("timed out after %s", timeout)
	}
	res.DurationMs = time.Since(t0).Milliseconds()
	res.Response = strings.TrimSpace(b.String())
	res.State = state.String()
	return res
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []ResultItem) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	_ = w.Write([]string{"query", "state", "fragments", "first_fragment_ms", "duration_ms", "model", "error", "response"})
	for _, it := range items {
		_ = w.Write([]string{
			it.Query,
			it.State,
			strconv.Itoa(it.Fragments),
			strconv.FormatInt(it.FirstFragMs, 10),
			strconv.FormatInt(it.DurationMs, 10),
			it.Model,
			it.Error,
			it.Response,
		})
	}
	w.Flush()
	return w.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
