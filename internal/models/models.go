// Package models defines the persisted entities shared by the repository
// layer and the domain services.
package models

import (
	"time"

	"github.com/Azelphur/Monord/internal/geo"
)

// Gym is a reported raid location.
type Gym struct {
	ID        int64  `gorm:"primaryKey"`
	Title     string `gorm:"index"`
	Latitude  float64
	Longitude float64
	EX        bool
}

func (g Gym) Location() geo.Point {
	return geo.Point{Lat: g.Latitude, Lon: g.Longitude}
}

// GymAlias is a per-chat alternate title for a gym.
type GymAlias struct {
	ID     int64  `gorm:"primaryKey"`
	Title  string `gorm:"index"`
	GymID  int64
	Gym    *Gym `gorm:"foreignKey:GymID"`
	ChatID int64
}

// Pokemon is a creature definition from the imported dataset.
//
// RaidLevel is nil for creatures that never appear in raids.
// AvailabilityRules holds the raw ruleset JSON (see package availability);
// nil means "always available once the tier matches".
type Pokemon struct {
	ID                int64  `gorm:"primaryKey"`
	Name              string `gorm:"index"`
	RaidLevel         *int
	EX                bool
	Shiny             bool
	PerfectCP         *int
	PerfectCPBoosted  *int
	AvailabilityRules *string
}

// Raid is one reported, time-boxed occurrence at a gym.
//
// PokemonID is nil while only the difficulty level is known. Level is
// always set: either the reported egg level or the resolved creature's
// raid level. Hatched/Despawned/Cancelled are monotonic; they are only
// ever reset by an explicit correction.
type Raid struct {
	ID          int64 `gorm:"primaryKey"`
	PokemonID   *int64
	Pokemon     *Pokemon `gorm:"foreignKey:PokemonID"`
	GymID       int64
	Gym         *Gym `gorm:"foreignKey:GymID"`
	Level       int
	StartTime   time.Time
	DespawnTime time.Time `gorm:"index"`
	EX          bool
	Hatched     bool
	Despawned   bool
	Cancelled   bool
}

// EmbedKind distinguishes the two message views kept per destination.
type EmbedKind int

const (
	EmbedRaid  EmbedKind = 1 // the ongoing-raid view
	EmbedHatch EmbedKind = 2 // the pending-hatch disambiguation view
)

// Embed tracks one delivered message so it can be edited or deleted later.
// At most one exists per (destination, kind); sending a replacement
// supersedes and removes the previous one. Embeds are owned by their raid
// and are removed with it.
type Embed struct {
	ID        int64 `gorm:"primaryKey"`
	ChatID    int64 `gorm:"index:idx_embed_target"`
	ThreadID  int   `gorm:"index:idx_embed_target"`
	MessageID int
	RaidID    int64
	Raid      *Raid `gorm:"foreignKey:RaidID"`
	Kind      EmbedKind
	DeleteAt  *time.Time `gorm:"index"`
}

// ChatConfig is one settings record, either chat-wide (ThreadID 0) or for
// a specific forum thread. Nil fields defer to the chat-wide record and
// then to the static default, independently per key.
type ChatConfig struct {
	ID                 int64 `gorm:"primaryKey"`
	ChatID             int64 `gorm:"uniqueIndex:idx_chat_thread"`
	ThreadID           int   `gorm:"uniqueIndex:idx_chat_thread"`
	Mirror             *bool
	Subscriptions      *bool
	Timezone           *string
	Region             *string
	DeleteAfterDespawn *int
}

// Going is one attendance entry on a raid.
type Going struct {
	ID     int64 `gorm:"primaryKey"`
	RaidID int64 `gorm:"uniqueIndex:idx_raid_user"`
	UserID int64 `gorm:"uniqueIndex:idx_raid_user"`
	ChatID int64
	Name   string
	Extra  int
}
