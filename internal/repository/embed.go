package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
)

type EmbedRepository interface {
	// Create inserts the record, removing any previous record for the same
	// (destination, kind) pair first.
	Create(ctx context.Context, embed *models.Embed) error
	GetByID(ctx context.Context, id int64) (*models.Embed, error)
	Save(ctx context.Context, embed *models.Embed) error
	Delete(ctx context.Context, id int64) error

	// NextDeletion returns the embed with the earliest scheduled deletion,
	// or nil when none is scheduled.
	NextDeletion(ctx context.Context) (*models.Embed, error)

	ListByRaid(ctx context.Context, raidID int64) ([]models.Embed, error)
	ListByRaidKind(ctx context.Context, raidID int64, kind models.EmbedKind) ([]models.Embed, error)
	ListByTarget(ctx context.Context, raidID int64, chatID int64, threadID int) ([]models.Embed, error)
	FindByMessage(ctx context.Context, chatID int64, messageID int) (*models.Embed, error)

	DeleteByRaid(ctx context.Context, raidID int64) error
	DeleteByRaidKind(ctx context.Context, raidID int64, kind models.EmbedKind) error

	// DeleteOrphans removes embeds whose raid no longer exists.
	DeleteOrphans(ctx context.Context) (int64, error)
}

type embedRepository struct {
	db *gorm.DB
}

func NewEmbedRepository(db *gorm.DB) EmbedRepository {
	return &embedRepository{db: db}
}

func (r *embedRepository) Create(ctx context.Context, embed *models.Embed) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("raid_id = ? AND chat_id = ? AND thread_id = ? AND kind = ?",
			embed.RaidID, embed.ChatID, embed.ThreadID, embed.Kind).
			Delete(&models.Embed{}).Error
		if err != nil {
			return err
		}
		return tx.Create(embed).Error
	})
}

func (r *embedRepository) GetByID(ctx context.Context, id int64) (*models.Embed, error) {
	var embed models.Embed
	err := r.db.WithContext(ctx).Take(&embed, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &embed, nil
}

func (r *embedRepository) Save(ctx context.Context, embed *models.Embed) error {
	return r.db.WithContext(ctx).Save(embed).Error
}

func (r *embedRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Embed{}, "id = ?", id).Error
}

func (r *embedRepository) NextDeletion(ctx context.Context) (*models.Embed, error) {
	var embed models.Embed
	err := r.db.WithContext(ctx).
		Where("delete_at IS NOT NULL").
		Order("delete_at").
		First(&embed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &embed, nil
}

func (r *embedRepository) ListByRaid(ctx context.Context, raidID int64) ([]models.Embed, error) {
	var out []models.Embed
	err := r.db.WithContext(ctx).Find(&out, "raid_id = ?", raidID).Error
	return out, err
}

func (r *embedRepository) ListByRaidKind(ctx context.Context, raidID int64, kind models.EmbedKind) ([]models.Embed, error) {
	var out []models.Embed
	err := r.db.WithContext(ctx).Find(&out, "raid_id = ? AND kind = ?", raidID, kind).Error
	return out, err
}

func (r *embedRepository) ListByTarget(ctx context.Context, raidID int64, chatID int64, threadID int) ([]models.Embed, error) {
	var out []models.Embed
	err := r.db.WithContext(ctx).
		Find(&out, "raid_id = ? AND chat_id = ? AND thread_id = ?", raidID, chatID, threadID).Error
	return out, err
}

func (r *embedRepository) FindByMessage(ctx context.Context, chatID int64, messageID int) (*models.Embed, error) {
	var embed models.Embed
	err := r.db.WithContext(ctx).
		First(&embed, "chat_id = ? AND message_id = ?", chatID, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &embed, nil
}

func (r *embedRepository) DeleteByRaid(ctx context.Context, raidID int64) error {
	return r.db.WithContext(ctx).Where("raid_id = ?", raidID).Delete(&models.Embed{}).Error
}

func (r *embedRepository) DeleteByRaidKind(ctx context.Context, raidID int64, kind models.EmbedKind) error {
	return r.db.WithContext(ctx).
		Where("raid_id = ? AND kind = ?", raidID, kind).
		Delete(&models.Embed{}).Error
}

func (r *embedRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("raid_id NOT IN (?)", r.db.Model(&models.Raid{}).Select("id")).
		Delete(&models.Embed{})
	return res.RowsAffected, res.Error
}
