package repository

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
)

type GymRepository interface {
	Create(ctx context.Context, gym *models.Gym) error
	GetByID(ctx context.Context, id int64) (*models.Gym, error)
	Delete(ctx context.Context, id int64) error

	// Find resolves user input to a gym: a numeric id, an exact title
	// (case-insensitive), or a per-chat alias. Returns nil when nothing
	// matches.
	Find(ctx context.Context, chatID int64, query string) (*models.Gym, error)

	AddAlias(ctx context.Context, alias *models.GymAlias) error
	RemoveAlias(ctx context.Context, chatID int64, gymID int64, title string) (bool, error)
	Aliases(ctx context.Context, chatID int64, gymID int64) ([]models.GymAlias, error)
}

type gymRepository struct {
	db *gorm.DB
}

func NewGymRepository(db *gorm.DB) GymRepository {
	return &gymRepository{db: db}
}

func (r *gymRepository) Create(ctx context.Context, gym *models.Gym) error {
	return r.db.WithContext(ctx).Create(gym).Error
}

func (r *gymRepository) GetByID(ctx context.Context, id int64) (*models.Gym, error) {
	var gym models.Gym
	if err := r.db.WithContext(ctx).Take(&gym, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gym, nil
}

func (r *gymRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gym_id = ?", id).Delete(&models.GymAlias{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Gym{}, "id = ?", id).Error
	})
}

func (r *gymRepository) Find(ctx context.Context, chatID int64, query string) (*models.Gym, error) {
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		gym, err := r.GetByID(ctx, id)
		if err == nil {
			return gym, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var gym models.Gym
	err := r.db.WithContext(ctx).
		Where("title LIKE ?", query).
		First(&gym).Error
	if err == nil {
		return &gym, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var alias models.GymAlias
	err = r.db.WithContext(ctx).
		Preload("Gym").
		Where("chat_id = ? AND title LIKE ?", chatID, query).
		First(&alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alias.Gym, nil
}

func (r *gymRepository) AddAlias(ctx context.Context, alias *models.GymAlias) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GymAlias{}).
		Where("chat_id = ? AND gym_id = ? AND title LIKE ?", alias.ChatID, alias.GymID, alias.Title).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAliasExists
	}
	return r.db.WithContext(ctx).Create(alias).Error
}

func (r *gymRepository) RemoveAlias(ctx context.Context, chatID int64, gymID int64, title string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("chat_id = ? AND gym_id = ? AND title LIKE ?", chatID, gymID, title).
		Delete(&models.GymAlias{})
	return res.RowsAffected > 0, res.Error
}

func (r *gymRepository) Aliases(ctx context.Context, chatID int64, gymID int64) ([]models.GymAlias, error) {
	var out []models.GymAlias
	err := r.db.WithContext(ctx).
		Find(&out, "chat_id = ? AND gym_id = ?", chatID, gymID).Error
	return out, err
}

var ErrAliasExists = errors.New("alias already exists")
