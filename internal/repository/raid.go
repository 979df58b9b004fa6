// Package repository provides the data-access layer over gorm. Each
// repository is a narrow interface so the domain services can be tested
// against an in-memory database.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
)

type RaidRepository interface {
	Create(ctx context.Context, raid *models.Raid) error
	GetByID(ctx context.Context, id int64) (*models.Raid, error)
	Save(ctx context.Context, raid *models.Raid) error
	// Delete removes the raid and everything it owns (embeds, attendance).
	Delete(ctx context.Context, id int64) error

	// FirstPending returns the pending raid with the earliest despawn time,
	// or nil when nothing is pending. A raid is pending while it is not
	// cancelled and has a hatch or despawn transition outstanding.
	FirstPending(ctx context.Context) (*models.Raid, error)
	// FirstUnhatched is FirstPending restricted to raids still waiting to hatch.
	FirstUnhatched(ctx context.Context) (*models.Raid, error)

	// FindAtGym returns a live raid at the gym whose window overlaps the
	// given despawn time, or nil. Used for duplicate-report detection.
	FindAtGym(ctx context.Context, gymID int64, despawnTime time.Time, window time.Duration) (*models.Raid, error)

	// PruneFinished deletes despawned or cancelled raids whose despawn time
	// is before the cutoff. Returns the number of raids removed.
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

type raidRepository struct {
	db *gorm.DB
}

func NewRaidRepository(db *gorm.DB) RaidRepository {
	return &raidRepository{db: db}
}

func (r *raidRepository) Create(ctx context.Context, raid *models.Raid) error {
	return r.db.WithContext(ctx).Create(raid).Error
}

func (r *raidRepository) GetByID(ctx context.Context, id int64) (*models.Raid, error) {
	var raid models.Raid
	err := r.db.WithContext(ctx).
		Preload("Gym").Preload("Pokemon").
		Take(&raid, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &raid, nil
}

func (r *raidRepository) Save(ctx context.Context, raid *models.Raid) error {
	return r.db.WithContext(ctx).Save(raid).Error
}

func (r *raidRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("raid_id = ?", id).Delete(&models.Embed{}).Error; err != nil {
			return err
		}
		if err := tx.Where("raid_id = ?", id).Delete(&models.Going{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Raid{}, "id = ?", id).Error
	})
}

func (r *raidRepository) pendingQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Gym").Preload("Pokemon").
		Where("cancelled = ?", false).
		Where("despawned = ? OR hatched = ?", false, false).
		Order("despawn_time")
}

func (r *raidRepository) FirstPending(ctx context.Context) (*models.Raid, error) {
	var raid models.Raid
	err := r.pendingQuery(ctx).First(&raid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &raid, nil
}

func (r *raidRepository) FirstUnhatched(ctx context.Context) (*models.Raid, error) {
	var raid models.Raid
	err := r.pendingQuery(ctx).Where("hatched = ?", false).First(&raid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &raid, nil
}

func (r *raidRepository) FindAtGym(ctx context.Context, gymID int64, despawnTime time.Time, window time.Duration) (*models.Raid, error) {
	var raid models.Raid
	err := r.db.WithContext(ctx).
		Preload("Gym").Preload("Pokemon").
		Where("gym_id = ? AND despawned = ? AND cancelled = ?", gymID, false, false).
		Where("despawn_time >= ? AND despawn_time <= ?",
			despawnTime.Add(-window), despawnTime.Add(window)).
		First(&raid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &raid, nil
}

func (r *raidRepository) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Raid{}).
		Where("(despawned = ? OR cancelled = ?) AND despawn_time < ?", true, true, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return int64(len(ids)), err
		}
	}
	return int64(len(ids)), nil
}
