package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LocalGenerator answers without any network call. It chunks a canned reply
// built from the current turn, which is enough to exercise clients offline.
type LocalGenerator struct {
	chunkSize int
	delay     time.Duration
}

func NewLocalGenerator(delay time.Duration) *LocalGenerator {
	return &LocalGenerator{chunkSize: 24, delay: delay}
}

func (g *LocalGenerator) Stream(ctx context.Context, prior []Turn, current string) (FragmentStream, error) {
	return &localStream{
		ctx:    ctx,
		chunks: chunk(localReply(prior, current), g.chunkSize),
		delay:  g.delay,
	}, nil
}

func localReply(prior []Turn, current string) string {
	q := strings.TrimSpace(current)
	if q == "" {
		q = "your question"
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "Local reply to: %s\n\n", truncate(q, 80))
	fmt.Fprintf(b, "- Earlier turns in this chat: %d\n", len(prior))
	fmt.Fprintln(b, "- No generation provider is configured, so this answer is canned.")
	fmt.Fprintln(b, "- Set LLM_PROVIDER=gemini or LLM_PROVIDER=openai to get real answers.")
	return b.String()
}

// chunk splits s into pieces of at most n bytes without cutting a rune.
func chunk(s string, n int) []string {
	var out []string
	for len(s) > 0 {
		end := min(n, len(s))
		for end < len(s) && end > 0 && !isRuneStart(s[end]) {
			end--
		}
		if end == 0 {
			end = len(s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

type localStream struct {
	ctx    context.Context
	chunks []string
	i      int
	cur    string
	delay  time.Duration
	closed bool
}

func (s *localStream) Next() bool {
	if s.closed || s.ctx.Err() != nil || s.i >= len(s.chunks) {
		return false
	}
	if s.i > 0 && s.delay > 0 {
		sleepWithContext(s.ctx, s.delay)
		if s.ctx.Err() != nil {
			return false
		}
	}
	s.cur = s.chunks[s.i]
	s.i++
	return true
}

func (s *localStream) Fragment() string { return s.cur }
func (s *localStream) Err() error       { return nil }

func (s *localStream) Close() error {
	s.closed = true
	return nil
}
