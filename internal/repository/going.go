package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
)

type GoingRepository interface {
	// Add registers attendance; adding an existing (raid, user) pair is a no-op.
	Add(ctx context.Context, going *models.Going) error
	Remove(ctx context.Context, raidID, userID int64) (bool, error)
	Get(ctx context.Context, raidID, userID int64) (*models.Going, error)
	ListByRaid(ctx context.Context, raidID int64) ([]models.Going, error)
	Save(ctx context.Context, going *models.Going) error
}

type goingRepository struct {
	db *gorm.DB
}

func NewGoingRepository(db *gorm.DB) GoingRepository {
	return &goingRepository{db: db}
}

func (r *goingRepository) Add(ctx context.Context, going *models.Going) error {
	existing, err := r.Get(ctx, going.RaidID, going.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(going).Error
}

func (r *goingRepository) Remove(ctx context.Context, raidID, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("raid_id = ? AND user_id = ?", raidID, userID).
		Delete(&models.Going{})
	return res.RowsAffected > 0, res.Error
}

func (r *goingRepository) Get(ctx context.Context, raidID, userID int64) (*models.Going, error) {
	var g models.Going
	err := r.db.WithContext(ctx).
		First(&g, "raid_id = ? AND user_id = ?", raidID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *goingRepository) ListByRaid(ctx context.Context, raidID int64) ([]models.Going, error) {
	var out []models.Going
	err := r.db.WithContext(ctx).
		Order("name").
		Find(&out, "raid_id = ?", raidID).Error
	return out, err
}

func (r *goingRepository) Save(ctx context.Context, going *models.Going) error {
	return r.db.WithContext(ctx).Save(going).Error
}
