package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
)

// Generator is a text generation provider.
type Generator interface {
	// Stream starts a generation for current given the prior turns. The
	// returned stream must be closed by the caller.
	Stream(ctx context.Context, prior []Turn, current string) (FragmentStream, error)
}

// FragmentStream iterates over generated text fragments. Next returns false
// once the stream is exhausted, failed, closed or its context is done; Err
// then reports the failure, if any.
type FragmentStream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

type FrameKind int

const (
	FrameData FrameKind = iota
	FrameDone
	FrameError
)

// Frame is one event delivered to a chat client.
type Frame struct {
	Kind FrameKind
	Text string
}

// Payload is the frame body without SSE framing.
func (f Frame) Payload() string {
	switch f.Kind {
	case FrameDone:
		return "[DONE]"
	case FrameError:
		return "[ERROR] " + f.Text
	default:
		return f.Text
	}
}

// Encode renders the frame as a server-sent event. Each line of a multi-line
// payload gets its own data field so EventSource clients rejoin them with
// newlines.
func (f Frame) Encode() string {
	var b strings.Builder
	for _, line := range strings.Split(f.Payload(), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// State is the lifecycle of one proxied generation.
type State int

const (
	StateStarted State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// History is a validated request, ready to stream.
type History struct {
	Prior   []Turn
	Current string
}

type ChatProxy struct {
	cfg config.LLM
	gen Generator
	log *logger.Logger
}

func NewChatProxy(cfg config.LLM, gen Generator, log *logger.Logger) *ChatProxy {
	return &ChatProxy{cfg: cfg, gen: gen, log: log.With("component", "chat_proxy")}
}

func (p *ChatProxy) Provider() string { return p.cfg.Provider }
func (p *ChatProxy) Model() string    { return p.cfg.Model }

// Prepare checks everything that must hold before any frame is sent.
func (p *ChatProxy) Prepare(msgs []ChatMessage) (History, error) {
	if !p.cfg.HasCredential() {
		return History{}, fmt.Errorf("%w: %s not configured", errs.ErrConfiguration, credentialName(p.cfg.Provider))
	}
	prior, current, err := BuildHistory(msgs)
	if err != nil {
		return History{}, err
	}
	return History{Prior: prior, Current: current}, nil
}

// Stream runs one generation, handing each non-empty fragment to emit as a
// data frame followed by exactly one terminal frame. If emit fails or ctx is
// done the generation is abandoned without further frames and the result is
// StateCancelled.
func (p *ChatProxy) Stream(ctx context.Context, h History, emit func(Frame) error) State {
	stream, err := p.gen.Stream(ctx, h.Prior, h.Current)
	if err != nil {
		if ctx.Err() != nil {
			return StateCancelled
		}
		return p.fail(emit, err, 0)
	}
	defer stream.Close()

	n := 0
	for stream.Next() {
		if ctx.Err() != nil {
			break
		}
		frag := stream.Fragment()
		if frag == "" {
			continue
		}
		if err := emit(Frame{Kind: FrameData, Text: frag}); err != nil {
			p.log.Debug("client went away", "fragments", n, "error", err)
			return StateCancelled
		}
		n++
	}
	if ctx.Err() != nil {
		p.log.Debug("generation cancelled", "fragments", n)
		return StateCancelled
	}
	if err := stream.Err(); err != nil {
		return p.fail(emit, err, n)
	}
	if err := emit(Frame{Kind: FrameDone}); err != nil {
		return StateCancelled
	}
	p.log.Debug("generation completed", "fragments", n)
	return StateCompleted
}

func (p *ChatProxy) fail(emit func(Frame) error, err error, n int) State {
	p.log.Error("generation failed", "provider", p.cfg.Provider, "fragments", n, "error", err)
	if emit(Frame{Kind: FrameError, Text: upstreamMessage(err)}) != nil {
		return StateCancelled
	}
	return StateFailed
}

// upstreamMessage strips the taxonomy prefix so clients see the provider's
// own description.
func upstreamMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, errs.ErrUpstream) {
		msg = strings.TrimPrefix(msg, errs.ErrUpstream.Error()+": ")
	}
	return msg
}

func credentialName(provider string) string {
	switch provider {
	case config.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case config.ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return "provider credential"
}
