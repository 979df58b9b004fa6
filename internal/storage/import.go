package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/Azelphur/Monord/internal/models"
	logx "github.com/Azelphur/Monord/pkg/logx"
)

// datasetEntry matches the game-data JSON file: a flat array of tagged
// records, each either a gym or a pokemon definition.
type datasetEntry struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type gymEntry struct {
	Title     string  `json:"title"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	EX        bool    `json:"ex"`
}

type pokemonEntry struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	RaidLevel         *int            `json:"raid_level"`
	EX                bool            `json:"ex"`
	Shiny             bool            `json:"shiny"`
	PerfectCP         *int            `json:"perfect_cp"`
	PerfectCPBoosted  *int            `json:"perfect_cp_boosted"`
	AvailabilityRules json.RawMessage `json:"availability_rules"`
}

// ImportDataset loads gyms and pokemon from the JSON dataset file,
// updating existing records in place. Returns (gyms, pokemon) counts.
func ImportDataset(db *gorm.DB, path string, log logx.Logger) (int, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var entries []datasetEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", path, err)
	}

	gyms, pokemon := 0, 0
	for i, e := range entries {
		switch e.Type {
		case "gym":
			var g gymEntry
			if err := json.Unmarshal(e.Data, &g); err != nil {
				return gyms, pokemon, fmt.Errorf("entry %d: %w", i, err)
			}
			if err := importGym(db, g); err != nil {
				return gyms, pokemon, err
			}
			gyms++
		case "pokemon":
			var p pokemonEntry
			if err := json.Unmarshal(e.Data, &p); err != nil {
				return gyms, pokemon, fmt.Errorf("entry %d: %w", i, err)
			}
			if err := importPokemon(db, p); err != nil {
				return gyms, pokemon, err
			}
			pokemon++
		default:
			log.Warn("skipping unknown dataset entry", logx.Int("index", i), logx.String("type", e.Type))
		}
	}
	log.Info("dataset imported", logx.Int("gyms", gyms), logx.Int("pokemon", pokemon))
	return gyms, pokemon, nil
}

func importGym(db *gorm.DB, e gymEntry) error {
	var existing models.Gym
	err := db.Where("latitude = ? AND longitude = ?", e.Latitude, e.Longitude).First(&existing).Error
	switch {
	case err == nil:
		existing.Title = e.Title
		existing.EX = e.EX
		return db.Save(&existing).Error
	case err == gorm.ErrRecordNotFound:
		return db.Create(&models.Gym{
			Title:     e.Title,
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
			EX:        e.EX,
		}).Error
	default:
		return err
	}
}

func importPokemon(db *gorm.DB, e pokemonEntry) error {
	p := models.Pokemon{
		ID:               e.ID,
		Name:             e.Name,
		RaidLevel:        e.RaidLevel,
		EX:               e.EX,
		Shiny:            e.Shiny,
		PerfectCP:        e.PerfectCP,
		PerfectCPBoosted: e.PerfectCPBoosted,
	}
	if len(e.AvailabilityRules) > 0 && string(e.AvailabilityRules) != "null" {
		s := string(e.AvailabilityRules)
		p.AvailabilityRules = &s
	}
	return db.Save(&p).Error
}
