package store

import (
	"context"
	"fmt"

	"ChatHub/models"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// SummaryFilter selects a page of conversations. A nil UserID lists every
// owner.
type SummaryFilter struct {
	UserID *string
	Offset int
	Limit  int
}

func (f SummaryFilter) normalized() SummaryFilter {
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

// ListConversationSummaries returns a page of conversations, most recently
// updated first, each with its message count and newest message content.
//
// The page is loaded first, then counts and newest messages for the whole
// page come from two grouped queries instead of two queries per row.
func (s *Store) ListConversationSummaries(ctx context.Context, f SummaryFilter) ([]models.ConversationSummary, error) {
	f = f.normalized()
	db := s.db.WithContext(ctx)

	q := db.Model(&models.Conversation{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	var convs []models.Conversation
	if err := q.Order("updated_at DESC").Order("seq DESC").
		Offset(f.Offset).Limit(f.Limit).
		Find(&convs).Error; err != nil {
		s.log.Error("failed to list conversations", "error", err)
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]models.ConversationSummary, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}

	var counts []struct {
		ConversationID string
		N              int64
	}
	if err := db.Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS n").
		Where("conversation_id IN ?", ids).
		Group("conversation_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	var newest []struct {
		ConversationID string
		Content        string
	}
	if err := db.Raw(`
		SELECT m.conversation_id, m.content
		FROM messages m
		WHERE m.conversation_id IN ?
		  AND m.seq = (
			SELECT m2.seq FROM messages m2
			WHERE m2.conversation_id = m.conversation_id
			ORDER BY m2.created_at DESC, m2.seq DESC
			LIMIT 1
		  )`, ids).
		Scan(&newest).Error; err != nil {
		return nil, fmt.Errorf("newest messages: %w", err)
	}

	countByID := make(map[string]int64, len(counts))
	for _, c := range counts {
		countByID[c.ConversationID] = c.N
	}
	lastByID := make(map[string]string, len(newest))
	for _, n := range newest {
		lastByID[n.ConversationID] = n.Content
	}

	for _, c := range convs {
		sum := models.ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			UserID:       c.UserID,
			MessageCount: countByID[c.ID],
		}
		if last, ok := lastByID[c.ID]; ok {
			sum.LastMessage = &last
		}
		out = append(out, sum)
	}
	return out, nil
}
