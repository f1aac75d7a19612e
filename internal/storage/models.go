package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// TableSnapshot is one saved version of a named tariff table. Payload holds
// the JSON tariff document.
type TableSnapshot struct {
	ID       string    `json:"id" gorm:"primaryKey;column:id"`
	Name     string    `json:"name" gorm:"index;column:name"`
	Payload  []byte    `json:"payload" gorm:"column:payload"`
	Checksum string    `json:"checksum" gorm:"column:checksum"`
	SavedAt  time.Time `json:"saved_at" gorm:"index;column:saved_at"`
}

func (TableSnapshot) TableName() string { return "tariff_snapshots" }

// normalize fills the generated fields of a snapshot about to be saved.
func (s *TableSnapshot) normalize() {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	if s.Checksum == "" {
		s.Checksum = Checksum(s.Payload)
	}
}

// Checksum is the hex SHA-256 of a payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the last outcome of a named job.
type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    int       `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error" gorm:"column:last_error"`
}
