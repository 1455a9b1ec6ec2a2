package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChatHub/models"
	"ChatHub/pkg/cache"
	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/store"
)

// ConversationStore is the persistence the conversation service needs.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string, userID *string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationWithMessages(ctx context.Context, id string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
	CreateMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListConversationSummaries(ctx context.Context, f store.SummaryFilter) ([]models.ConversationSummary, error)
}

type ConversationService struct {
	store ConversationStore
	cache *cache.Cache[models.Conversation]
	log   *logger.Logger

	// mu guards loads. A key is present only while a Get is reading it from
	// the store.
	mu    sync.Mutex
	loads map[string]*pendingLoad
}

// pendingLoad tracks in-flight store reads of one conversation. gen moves
// on every invalidation, so a read that started before a write never fills
// the cache with what it saw.
type pendingLoad struct {
	gen     uint64
	readers int
}

// NewConversationService caches full conversations per cfg. A zero TTL
// disables the cache.
func NewConversationService(st ConversationStore, cfg config.Cache, log *logger.Logger) *ConversationService {
	s := &ConversationService{
		store: st,
		log:   log.With("component", "conversations"),
		loads: make(map[string]*pendingLoad),
	}
	if cfg.TTL > 0 {
		s.cache = cache.New[models.Conversation](cfg.MaxItems, cfg.TTL, time.Minute)
	}
	return s
}

// Close stops the cache janitor.
func (s *ConversationService) Close() {
	s.cache.Close()
}

func (s *ConversationService) Create(ctx context.Context, title string, userID *string) (*models.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, title, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("conversation created", "conversationId", conv.ID)
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context, f store.SummaryFilter) ([]models.ConversationSummary, error) {
	return s.store.ListConversationSummaries(ctx, f)
}

// Get returns the conversation with its messages.
func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if conv, ok := s.cache.Get(id); ok {
		return cloneConversation(conv), nil
	}
	gen := s.beginLoad(id)
	conv, err := s.store.GetConversationWithMessages(ctx, id)
	s.endLoad(id, gen, conv)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) beginLoad(id string) uint64 {
	if s.cache == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.loads[id]
	if !ok {
		p = &pendingLoad{}
		s.loads[id] = p
	}
	p.readers++
	return p.gen
}

// endLoad caches conv unless the conversation was invalidated after the
// matching beginLoad.
func (s *ConversationService) endLoad(id string, gen uint64, conv *models.Conversation) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.loads[id]
	if conv != nil && p.gen == gen {
		s.cache.Set(id, *cloneConversation(*conv))
	}
	if p.readers--; p.readers == 0 {
		delete(s.loads, id)
	}
}

// invalidate drops the cached conversation and voids any read of it still
// in flight. Call it after the store write has returned.
func (s *ConversationService) invalidate(id string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.loads[id]; ok {
		p.gen++
	}
	s.cache.Delete(id)
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteConversation(ctx, id)
	s.invalidate(id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: conversation %s", errs.ErrNotFound, id)
	}
	s.log.Info("conversation deleted", "conversationId", id)
	return nil
}

// AddMessage appends a message, refusing unknown conversations before any
// insert is attempted.
func (s *ConversationService) AddMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	msg, err := s.store.CreateMessage(ctx, conversationID, role, content)
	s.invalidate(conversationID)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages lists a conversation's messages oldest first. An unknown
// conversation is ErrNotFound, not an empty list.
func (s *ConversationService) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// cloneConversation copies the message slice so cached entries are never
// shared with callers.
func cloneConversation(c models.Conversation) *models.Conversation {
	c.Messages = append(make([]models.Message, 0, len(c.Messages)), c.Messages...)
	return &c
}
