package repository

import (
	"time"

	"github.com/google/uuid"
)

// Record is one completed download kept in the history.
type Record struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	InfoHash    string    `json:"infoHash"`
	Announce    string    `json:"announce"`
	Output      string    `json:"output"`
	Length      int64     `json:"length"`
	Pieces      int       `json:"pieces"`
	Peer        string    `json:"peer"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Duration returns how long the download took.
func (r *Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

type Repository interface {
	Save(record *Record) error
	Find(id uuid.UUID) (*Record, error)
	FindAll() ([]*Record, error)
	Delete(id uuid.UUID) error
	Close() error
}
