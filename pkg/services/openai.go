package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
)

// OpenAIGenerator streams chat completions from any OpenAI-compatible
// endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

func NewOpenAIGenerator(cfg config.LLM, log *logger.Logger, opts ...option.RequestOption) *OpenAIGenerator {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		url := cfg.BaseURL
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		base = append(base, option.WithBaseURL(url))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(append(base, opts...)...),
		model:  cfg.Model,
		log:    log.With("component", "openai"),
	}
}

func (g *OpenAIGenerator) Stream(ctx context.Context, prior []Turn, current string) (FragmentStream, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(prior)+1)
	for _, t := range prior {
		if t.Role == TurnModel {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(current))

	g.log.Debug("streaming", "model", g.model)
	stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(openai.ChatModel(g.model)),
	})
	// A failed connection or non-2xx status is recorded before the first chunk.
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}
	return &openaiStream{s: stream}, nil
}

type openaiStream struct {
	s   *ssestream.Stream[openai.ChatCompletionChunk]
	cur string
}

func (o *openaiStream) Next() bool {
	if !o.s.Next() {
		return false
	}
	o.cur = ""
	if chunk := o.s.Current(); len(chunk.Choices) > 0 {
		o.cur = chunk.Choices[0].Delta.Content
	}
	return true
}

func (o *openaiStream) Fragment() string { return o.cur }

func (o *openaiStream) Err() error {
	if err := o.s.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}
	return nil
}

func (o *openaiStream) Close() error { return o.s.Close() }
