package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/cardioscore/internal/report"
)

var (
	ErrNotFound         = errors.New("session: not found")
	ErrInvalidSessionID = errors.New("session: invalid session id")
)

// Patient is a saved profile that can be re-scored later.
type Patient struct {
	Name     string             `json:"name"`
	Features map[string]float64 `json:"features"`
	SavedAt  time.Time          `json:"saved_at"`
}

// Store keeps per-session prediction history and saved patient profiles.
// History is returned oldest first.
type Store interface {
	Append(ctx context.Context, sessionID string, entry report.Entry) error
	History(ctx context.Context, sessionID string) ([]report.Entry, error)
	SavePatient(ctx context.Context, sessionID string, p Patient) error
	Patient(ctx context.Context, sessionID, name string) (Patient, error)
	Patients(ctx context.Context, sessionID string) ([]Patient, error)
}

// Recorder binds a store to one session so the report builder can append to it.
func Recorder(s Store, sessionID string) report.History {
	return report.HistoryFunc(func(ctx context.Context, entry report.Entry) error {
		return s.Append(ctx, sessionID, entry)
	})
}

func NewID() string {
	return uuid.NewString()
}

// ValidID accepts short opaque identifiers safe to embed in keys and URLs.
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0
}
