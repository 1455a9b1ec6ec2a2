package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
)

// GeminiGenerator streams from the Gemini streamGenerateContent REST endpoint.
type GeminiGenerator struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	retryDelay time.Duration
	log        *logger.Logger
}

func NewGeminiGenerator(cfg config.LLM, client *http.Client, log *logger.Logger) *GeminiGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiGenerator{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     client,
		retryDelay: 2 * time.Second,
		log:        log.With("component", "gemini"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GeminiGenerator) Stream(ctx context.Context, prior []Turn, current string) (FragmentStream, error) {
	contents := make([]geminiContent, 0, len(prior)+1)
	for _, t := range prior {
		contents = append(contents, geminiContent{Role: t.Role, Parts: []geminiPart{{Text: t.Content}}})
	}
	contents = append(contents, geminiContent{Role: TurnUser, Parts: []geminiPart{{Text: current}}})
	body, err := json.Marshal(geminiRequest{Contents: contents})
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	resp, err := g.post(ctx, body)
	if err != nil && isRetriable(err) {
		g.log.Warn("gemini busy, retrying once", "model", g.model, "error", err)
		sleepWithContext(ctx, g.retryDelay)
		resp, err = g.post(ctx, body)
	}
	if err != nil {
		return nil, err
	}
	return newGeminiStream(ctx, resp.Body), nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (g *GeminiGenerator) post(ctx context.Context, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", g.apiKey)

	g.log.Debug("streaming", "model", g.model)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", errs.ErrUpstream, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))})
	}
	return resp, nil
}

// geminiStream parses the alt=sse response body one event at a time.
type geminiStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	cur     string
	err     error

	mu     sync.Mutex
	closed bool
}

func newGeminiStream(ctx context.Context, body io.ReadCloser) *geminiStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &geminiStream{ctx: ctx, body: body, scanner: sc}
}

func (s *geminiStream) Next() bool {
	if s.err != nil || s.isClosed() || s.ctx.Err() != nil {
		return false
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = fmt.Errorf("%w: malformed stream chunk: %v", errs.ErrUpstream, err)
			return false
		}
		if chunk.Error != nil {
			s.err = fmt.Errorf("%w: %s", errs.ErrUpstream, chunk.Error.Message)
			return false
		}
		var b strings.Builder
		for _, c := range chunk.Candidates {
			for _, p := range c.Content.Parts {
				b.WriteString(p.Text)
			}
		}
		s.cur = b.String()
		return true
	}
	if err := s.scanner.Err(); err != nil && !s.isClosed() && s.ctx.Err() == nil {
		s.err = fmt.Errorf("%w: stream read error: %v", errs.ErrUpstream, err)
	}
	return false
}

func (s *geminiStream) Fragment() string { return s.cur }
func (s *geminiStream) Err() error       { return s.err }

func (s *geminiStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *geminiStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// isRetriable reports overload and quota responses.
func isRetriable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.code == http.StatusServiceUnavailable || se.code == http.StatusTooManyRequests
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
