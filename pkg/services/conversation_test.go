package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatHub/models"
	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/store"
)

// countingStore records how often full conversations and inserts reach the
// database.
type countingStore struct {
	*store.Store
	fullLoads int
	inserts   int
}

func (c *countingStore) GetConversationWithMessages(ctx context.Context, id string) (*models.Conversation, error) {
	c.fullLoads++
	return c.Store.GetConversationWithMessages(ctx, id)
}

func (c *countingStore) CreateMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error) {
	c.inserts++
	return c.Store.CreateMessage(ctx, conversationID, role, content)
}

// pausingStore holds the next full load after it has read the database,
// until the test lets it go.
type pausingStore struct {
	*store.Store
	mu     sync.Mutex
	hold   bool
	loaded chan struct{}
	resume chan struct{}
}

func (p *pausingStore) holdNextLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hold = true
	p.loaded = make(chan struct{})
	p.resume = make(chan struct{})
}

func (p *pausingStore) GetConversationWithMessages(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := p.Store.GetConversationWithMessages(ctx, id)
	p.mu.Lock()
	hold, loaded, resume := p.hold, p.loaded, p.resume
	p.hold = false
	p.mu.Unlock()
	if hold {
		close(loaded)
		<-resume
	}
	return conv, err
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	st, err := store.Open(config.Database{Driver: config.DriverSQLite, DSN: dsn}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newPausingService(t *testing.T) (*ConversationService, *pausingStore) {
	t.Helper()
	ps := &pausingStore{Store: openTestStore(t)}
	svc := NewConversationService(ps, config.Cache{TTL: time.Minute, MaxItems: 10}, logger.Nop())
	t.Cleanup(svc.Close)
	return svc, ps
}

// getDuringWrite starts a Get that stalls after its database read, runs
// write, then lets the Get finish.
func getDuringWrite(t *testing.T, svc *ConversationService, ps *pausingStore, id string, write func()) {
	t.Helper()
	ps.holdNextLoad()
	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(context.Background(), id)
		done <- err
	}()
	<-ps.loaded
	write()
	close(ps.resume)
	require.NoError(t, <-done)
}

func TestServiceGetRacingDeleteDoesNotCacheDeletedConversation(t *testing.T) {
	svc, ps := newPausingService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "racy", nil)
	require.NoError(t, err)

	getDuringWrite(t, svc, ps, conv.ID, func() {
		require.NoError(t, svc.Delete(ctx, conv.ID))
	})

	got, err := svc.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Nil(t, got)
}

func TestServiceGetRacingAddMessageSeesNewMessage(t *testing.T) {
	svc, ps := newPausingService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "racy", nil)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, conv.ID, models.RoleUser, "first")
	require.NoError(t, err)

	getDuringWrite(t, svc, ps, conv.ID, func() {
		_, err := svc.AddMessage(ctx, conv.ID, models.RoleAssistant, "second")
		require.NoError(t, err)
	})

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "second", got.Messages[1].Content)
}

func TestServiceGetCachesWhenNothingInterferes(t *testing.T) {
	svc, ps := newPausingService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "calm", nil)
	require.NoError(t, err)
	getDuringWrite(t, svc, ps, conv.ID, func() {})

	_, ok := svc.cache.Get(conv.ID)
	assert.True(t, ok)
	assert.Empty(t, svc.loads, "no load bookkeeping left behind")
}

func newTestService(t *testing.T) (*ConversationService, *countingStore) {
	t.Helper()
	cs := &countingStore{Store: openTestStore(t)}
	svc := NewConversationService(cs, config.Cache{TTL: time.Minute, MaxItems: 10}, logger.Nop())
	t.Cleanup(svc.Close)
	return svc, cs
}

func TestServiceGetIsCachedAndInvalidated(t *testing.T) {
	svc, cs := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "cached", nil)
	require.NoError(t, err)

	_, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.fullLoads)
	assert.Empty(t, got.Messages)

	_, err = svc.AddMessage(ctx, conv.ID, models.RoleUser, "hello")
	require.NoError(t, err)

	got, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.fullLoads)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestServiceCachedCopyIsNotShared(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "c", nil)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, conv.ID, models.RoleUser, "one")
	require.NoError(t, err)

	first, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	first.Messages[0].Content = "mutated"

	second, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", second.Messages[0].Content)
}

func TestServiceAddMessageUnknownConversation(t *testing.T) {
	svc, cs := newTestService(t)

	_, err := svc.AddMessage(context.Background(), uuid.NewString(), models.RoleUser, "hi")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Zero(t, cs.inserts, "no insert attempted for a missing conversation")
}

func TestServiceMessagesUnknownConversation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Messages(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestServiceDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "gone", nil)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, conv.ID, models.RoleUser, "a")
	require.NoError(t, err)
	_, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, conv.ID))

	_, err = svc.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound, "cache must not outlive the row")
	_, err = svc.Messages(ctx, conv.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, conv.ID), errs.ErrNotFound)
}

func TestServiceListAndMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "list", nil)
	require.NoError(t, err)
	for _, c := range []string{"a", "b"} {
		_, err = svc.AddMessage(ctx, conv.ID, models.RoleUser, c)
		require.NoError(t, err)
	}

	msgs, err := svc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Content)

	sums, err := svc.List(ctx, store.SummaryFilter{})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, int64(2), sums[0].MessageCount)
	require.NotNil(t, sums[0].LastMessage)
	assert.Equal(t, "b", *sums[0].LastMessage)
}

func TestServiceWithoutCache(t *testing.T) {
	cs := &countingStore{Store: openTestStore(t)}
	svc := NewConversationService(cs, config.Cache{}, logger.Nop())
	defer svc.Close()

	conv, err := svc.Create(context.Background(), "nocache", nil)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = svc.Get(context.Background(), conv.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cs.fullLoads)
}
