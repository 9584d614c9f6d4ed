package models

import (
	"encoding/json"
	"time"
)

// TournamentRecord is the archived result of a finished tournament.
type TournamentRecord struct {
	ID          int             `json:"id" db:"id"`
	RoomID      string          `json:"room_id" db:"room_id"`
	Format      string          `json:"format" db:"format"`
	Generator   string          `json:"generator" db:"generator"`
	PlayerCount int             `json:"player_count" db:"player_count"`
	Results     json.RawMessage `json:"results" db:"results"`
	Forced      bool            `json:"forced" db:"forced"`
	EndedAt     time.Time       `json:"ended_at" db:"ended_at"`
}
