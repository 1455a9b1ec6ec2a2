package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ChatHub/models"
	"ChatHub/pkg/config"
	"ChatHub/pkg/errs"
	"ChatHub/pkg/logger"
)

// Store owns conversations and messages.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

type Option func(*Store)

// WithClock replaces the timestamp source. Tests use it to get distinct,
// predictable timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.Database, log *logger.Logger, opts ...Option) (*Store, error) {
	log = log.With("component", "store", "driver", cfg.Driver)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	case config.DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", errs.ErrConfiguration, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(log),
		NowFunc: defaultClock,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One writer keeps SQLite away from SQLITE_BUSY and lets named
		// in-memory databases live as long as the store.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := New(db, log, opts...)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Info("store ready")
	return s, nil
}

// New wraps an existing gorm handle without migrating.
func New(db *gorm.DB, log *logger.Logger, opts ...Option) *Store {
	s := &Store{db: db, log: log, now: defaultClock}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteDSN makes sure foreign keys are enforced; SQLite leaves them off by
// default.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + "_foreign_keys=on"
}

func (s *Store) CreateConversation(ctx context.Context, title string, userID *string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", errs.ErrValidation)
	}
	if userID != nil && strings.TrimSpace(*userID) == "" {
		userID = nil
	}

	now := s.now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Omit("Messages").Create(conv).Error; err != nil {
		s.log.Error("failed to create conversation", "error", err)
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv.Messages = []models.Message{}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&conv).Error; err != nil {
		return nil, notFound(err, "conversation", id)
	}
	return &conv, nil
}

// GetConversationWithMessages loads a conversation and its messages in
// conversation order.
func (s *Store) GetConversationWithMessages(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("seq ASC")
		}).
		Where("id = ?", id).
		Take(&conv).Error
	if err != nil {
		return nil, notFound(err, "conversation", id)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return &conv, nil
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction. It reports whether the conversation existed.
func (s *Store) DeleteConversation(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		s.log.Error("failed to delete conversation", "conversationID", id, "error", err)
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return deleted, nil
}

// CreateMessage appends a message and touches the parent's updated_at in the
// same transaction. Role is stored as given, empty included. For serial
// appends the message timestamp never precedes the parent's updated_at, so
// both stay monotonic even if the wall clock steps back. Concurrent appends
// to one conversation read the parent unlocked and the last writer wins.
func (s *Store) CreateMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", errs.ErrValidation)
	}

	var msg *models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Select("seq", "id", "updated_at").Where("id = ?", conversationID).Take(&conv).Error; err != nil {
			return notFound(err, "conversation", conversationID)
		}

		createdAt := s.now()
		if createdAt.Before(conv.UpdatedAt) {
			createdAt = conv.UpdatedAt
		}
		m := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           role,
			Content:        content,
			CreatedAt:      createdAt,
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("updated_at", createdAt).Error; err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		msg = m
		return nil
	})
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			s.log.Error("failed to create message", "conversationID", conversationID, "error", err)
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the messages of a conversation, oldest first. A
// conversation without messages yields an empty slice.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&msgs).Error; err != nil {
		s.log.Error("failed to list messages", "conversationID", conversationID, "error", err)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, errs.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", kind, err)
}
