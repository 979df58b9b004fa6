package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
)

type PokemonRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Pokemon, error)
	// FindByName matches case-insensitively; returns nil when unknown.
	FindByName(ctx context.Context, name string) (*models.Pokemon, error)
	// ListByLevel returns every creature of the tier and EX class, ordered
	// by name. This is the resolver's candidate pool.
	ListByLevel(ctx context.Context, level int, ex bool) ([]models.Pokemon, error)
	Save(ctx context.Context, pokemon *models.Pokemon) error
}

type pokemonRepository struct {
	db *gorm.DB
}

func NewPokemonRepository(db *gorm.DB) PokemonRepository {
	return &pokemonRepository{db: db}
}

func (r *pokemonRepository) GetByID(ctx context.Context, id int64) (*models.Pokemon, error) {
	var p models.Pokemon
	if err := r.db.WithContext(ctx).Take(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pokemonRepository) FindByName(ctx context.Context, name string) (*models.Pokemon, error) {
	var p models.Pokemon
	err := r.db.WithContext(ctx).Where("name LIKE ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pokemonRepository) ListByLevel(ctx context.Context, level int, ex bool) ([]models.Pokemon, error) {
	var out []models.Pokemon
	err := r.db.WithContext(ctx).
		Where("raid_level = ? AND ex = ?", level, ex).
		Order("name").
		Find(&out).Error
	return out, err
}

func (r *pokemonRepository) Save(ctx context.Context, pokemon *models.Pokemon) error {
	return r.db.WithContext(ctx).Save(pokemon).Error
}
