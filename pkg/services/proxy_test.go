package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
)

type fakeStream struct {
	frags  []string
	fail   error
	i      int
	cur    string
	err    error
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.closed {
		return false
	}
	if s.i >= len(s.frags) {
		s.err = s.fail
		return false
	}
	s.cur = s.frags[s.i]
	s.i++
	return true
}

func (s *fakeStream) Fragment() string { return s.cur }
func (s *fakeStream) Err() error       { return s.err }
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeGenerator struct {
	stream  *fakeStream
	openErr error

	prior   []Turn
	current string
}

func (g *fakeGenerator) Stream(_ context.Context, prior []Turn, current string) (FragmentStream, error) {
	g.prior, g.current = prior, current
	if g.openErr != nil {
		return nil, g.openErr
	}
	return g.stream, nil
}

var testLLM = config.LLM{Provider: config.ProviderGemini, APIKey: "k", Model: "gemini-test"}

func collect(frames *[]string) func(Frame) error {
	return func(f Frame) error {
		*frames = append(*frames, f.Encode())
		return nil
	}
}

func TestProxyStreamsFragmentsThenDone(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{frags: []string{"He", "", "llo"}}}
	p := NewChatProxy(testLLM, gen, logger.Nop())

	h, err := p.Prepare([]ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var frames []string
	state := p.Stream(context.Background(), h, collect(&frames))

	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, []string{"data: He\n\n", "data: llo\n\n", "data: [DONE]\n\n"}, frames)
	assert.Equal(t, "hi", gen.current)
	assert.True(t, gen.stream.closed)
}

func TestProxyMidStreamFailure(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{
		frags: []string{"Hi"},
		fail:  errors.New("quota exceeded"),
	}}
	p := NewChatProxy(testLLM, gen, logger.Nop())

	var frames []string
	state := p.Stream(context.Background(), History{Current: "x"}, collect(&frames))

	assert.Equal(t, StateFailed, state)
	assert.Equal(t, []string{"data: Hi\n\n", "data: [ERROR] quota exceeded\n\n"}, frames)
	assert.True(t, gen.stream.closed)
}

func TestProxyOpenFailureIsInStream(t *testing.T) {
	gen := &fakeGenerator{openErr: wrapUpstream("connection refused: boom")}
	p := NewChatProxy(testLLM, gen, logger.Nop())

	var frames []string
	state := p.Stream(context.Background(), History{Current: "x"}, collect(&frames))

	assert.Equal(t, StateFailed, state)
	require.Len(t, frames, 1)
	assert.Equal(t, "data: [ERROR] connection refused: boom\n\n", frames[0])
}

func TestProxyUpstreamPrefixStripped(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{fail: wrapUpstream("status 429: slow down")}}
	p := NewChatProxy(testLLM, gen, logger.Nop())

	var frames []string
	p.Stream(context.Background(), History{Current: "x"}, collect(&frames))
	assert.Equal(t, []string{"data: [ERROR] status 429: slow down\n\n"}, frames)
}

func wrapUpstream(msg string) error {
	return fmt.Errorf("%w: %s", errs.ErrUpstream, msg)
}

func TestProxyStopsWhenClientGoesAway(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{frags: []string{"a", "b", "c"}}}
	p := NewChatProxy(testLLM, gen, logger.Nop())

	var got []Frame
	state := p.Stream(context.Background(), History{Current: "x"}, func(f Frame) error {
		got = append(got, f)
		if len(got) == 2 {
			return errors.New("broken pipe")
		}
		return nil
	})

	assert.Equal(t, StateCancelled, state)
	assert.Len(t, got, 2)
	assert.True(t, gen.stream.closed)
	assert.Equal(t, 2, gen.stream.i, "no fragment pulled after the failed write")
}

func TestProxyStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{stream: &fakeStream{frags: []string{"a", "b", "c"}}}
	p := NewChatProxy(testLLM, gen, logger.Nop())

	var frames []Frame
	state := p.Stream(ctx, History{Current: "x"}, func(f Frame) error {
		frames = append(frames, f)
		cancel()
		return nil
	})

	assert.Equal(t, StateCancelled, state)
	assert.Len(t, frames, 1)
	assert.True(t, gen.stream.closed)
}

func TestPrepareRequiresCredential(t *testing.T) {
	p := NewChatProxy(config.LLM{Provider: config.ProviderGemini, Model: "m"}, &fakeGenerator{}, logger.Nop())
	_, err := p.Prepare([]ChatMessage{{Role: "user", Content: "hi"}})
	require.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestPrepareChecksCredentialBeforeMessages(t *testing.T) {
	p := NewChatProxy(config.LLM{Provider: config.ProviderOpenAI}, &fakeGenerator{}, logger.Nop())
	_, err := p.Prepare(nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestPrepareRejectsEmptyMessages(t *testing.T) {
	p := NewChatProxy(testLLM, &fakeGenerator{}, logger.Nop())
	_, err := p.Prepare([]ChatMessage{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPrepareLocalNeedsNoCredential(t *testing.T) {
	p := NewChatProxy(config.LLM{Provider: config.ProviderLocal}, &fakeGenerator{}, logger.Nop())
	h, err := p.Prepare([]ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", h.Current)
}

func TestFrameEncode(t *testing.T) {
	assert.Equal(t, "data: hello\n\n", Frame{Kind: FrameData, Text: "hello"}.Encode())
	assert.Equal(t, "data: [DONE]\n\n", Frame{Kind: FrameDone}.Encode())
	assert.Equal(t, "data: [ERROR] nope\n\n", Frame{Kind: FrameError, Text: "nope"}.Encode())
	assert.Equal(t, "data: line one\ndata: line two\n\n", Frame{Kind: FrameData, Text: "line one\nline two"}.Encode())
}
