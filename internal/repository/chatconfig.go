package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
)

type ChatConfigRepository interface {
	// Get returns the record for exactly (chatID, threadID), or nil.
	Get(ctx context.Context, chatID int64, threadID int) (*models.ChatConfig, error)
	// GetPair returns the thread-specific and chat-wide records for a
	// destination in one call; either may be nil.
	GetPair(ctx context.Context, chatID int64, threadID int) (thread, chat *models.ChatConfig, err error)
	Upsert(ctx context.Context, cfg *models.ChatConfig) error
	// ListAll returns every settings record. The router scans these for
	// region matching.
	ListAll(ctx context.Context) ([]models.ChatConfig, error)
}

type chatConfigRepository struct {
	db *gorm.DB
}

func NewChatConfigRepository(db *gorm.DB) ChatConfigRepository {
	return &chatConfigRepository{db: db}
}

func (r *chatConfigRepository) Get(ctx context.Context, chatID int64, threadID int) (*models.ChatConfig, error) {
	var cfg models.ChatConfig
	err := r.db.WithContext(ctx).
		First(&cfg, "chat_id = ? AND thread_id = ?", chatID, threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *chatConfigRepository) GetPair(ctx context.Context, chatID int64, threadID int) (*models.ChatConfig, *models.ChatConfig, error) {
	var records []models.ChatConfig
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND thread_id IN (?, 0)", chatID, threadID).
		Find(&records).Error
	if err != nil {
		return nil, nil, err
	}
	var thread, chat *models.ChatConfig
	for i := range records {
		if records[i].ThreadID == 0 {
			chat = &records[i]
		}
		if threadID != 0 && records[i].ThreadID == threadID {
			thread = &records[i]
		}
	}
	return thread, chat, nil
}

func (r *chatConfigRepository) Upsert(ctx context.Context, cfg *models.ChatConfig) error {
	existing, err := r.Get(ctx, cfg.ChatID, cfg.ThreadID)
	if err != nil {
		return err
	}
	if existing != nil {
		cfg.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *chatConfigRepository) ListAll(ctx context.Context) ([]models.ChatConfig, error) {
	var out []models.ChatConfig
	err := r.db.WithContext(ctx).Find(&out).Error
	return out, err
}
