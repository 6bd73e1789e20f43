package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vooshlabs/newsrag/internal/pipeline"
)

type sessionModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"index"`
}

func (sessionModel) TableName() string { return "chat_sessions" }

type messageModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"type:uuid;index;not null"`
	Role      string `gorm:"size:16;not null"`
	Content   string `gorm:"type:text;not null"`
	// Articles is the JSON-encoded cited-article list for
	// assistant messages.
	Articles  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (messageModel) TableName() string { return "chat_messages" }

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the session tables.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm connection and migrates the
// session tables.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&sessionModel{}, &messageModel{}); err != nil {
		return nil, fmt.Errorf("migrating session tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Create starts a new empty session and returns its id.
func (s *GormStore) Create(ctx context.Context) (string, error) {
	model := sessionModel{ID: uuid.NewString(), CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return model.ID, nil
}

// Append adds messages to a session's transcript.
func (s *GormStore) Append(ctx context.Context, id string, messages ...Message) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}

	models := make([]messageModel, len(messages))
	for i, m := range messages {
		var articles []byte
		if len(m.Articles) > 0 {
			var err error
			articles, err = json.Marshal(m.Articles)
			if err != nil {
				return fmt.Errorf("encoding cited articles: %w", err)
			}
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		models[i] = messageModel{
			SessionID: id,
			Role:      m.Role,
			Content:   m.Content,
			Articles:  articles,
			CreatedAt: ts,
		}
	}
	if err := s.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("appending messages: %w", err)
	}
	return nil
}

// Messages returns a session's transcript in order.
func (s *GormStore) Messages(ctx context.Context, id string) ([]Message, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	var models []messageModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("id asc").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	messages := make([]Message, len(models))
	for i, m := range models {
		messages[i] = Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}
		if len(m.Articles) > 0 {
			var articles []pipeline.RetrievedArticle
			if err := json.Unmarshal(m.Articles, &articles); err != nil {
				return nil, fmt.Errorf("decoding cited articles: %w", err)
			}
			messages[i].Articles = articles
		}
	}
	return messages, nil
}

// Clear empties a session's transcript, keeping the session.
func (s *GormStore) Clear(ctx context.Context, id string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Where("session_id = ?", id).
		Delete(&messageModel{}).Error
	if err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	return nil
}

// ListRecent returns summaries of the most recent sessions, newest first.
func (s *GormStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	var rows []struct {
		ID           string
		CreatedAt    time.Time
		MessageCount int
	}
	err := s.db.WithContext(ctx).
		Model(&sessionModel{}).
		Select("chat_sessions.id, chat_sessions.created_at, count(chat_messages.id) as message_count").
		Joins("left join chat_messages on chat_messages.session_id = chat_sessions.id").
		Group("chat_sessions.id").
		Order("chat_sessions.created_at desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	summaries := make([]Summary, len(rows))
	for i, r := range rows {
		summaries[i] = Summary{ID: r.ID, CreatedAt: r.CreatedAt, MessageCount: r.MessageCount}
	}
	return summaries, nil
}

func (s *GormStore) exists(ctx context.Context, id string) error {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*GormStore)(nil)
