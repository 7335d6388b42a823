package store

import (
	"context"
	"errors"
	"time"

	"github.com/hkealoha/town-weather-service/internal/models"
)

// ErrNotFound is returned when no record exists for the given key.
var ErrNotFound = errors.New("not found")

// UserStore holds resident identities and their reputation scores.
// Users are created on first sign-in and never deleted.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	// FindByOriginIP returns the guest user previously issued for this
	// client origin, enforcing at most one guest record per observed origin.
	FindByOriginIP(ctx context.Context, ip string) (models.User, error)
	// FindByGoogle matches a federated user by subject id or email.
	FindByGoogle(ctx context.Context, googleID, email string) (models.User, error)
	// AddReputation adjusts a user's reputation by delta (delta must be
	// positive; reputation never decreases) and returns the updated user.
	AddReputation(ctx context.Context, id string, delta int) (models.User, error)
}

// VoteLedger is the append-only record of individual condition votes.
// Votes are immutable once recorded and duplicates accumulate.
type VoteLedger interface {
	Record(ctx context.Context, vote models.Vote) (string, error)
	// ListByLocation returns all votes for the location in insertion order.
	ListByLocation(ctx context.Context, location string) ([]models.Vote, error)
	// CountRecent counts this voter's votes for the location whose timestamp
	// falls within [now-window, now]. Used only for rate limiting.
	CountRecent(ctx context.Context, voterID, location string, window time.Duration) (int, error)
}

// ReadingCache stores the last resolved weather reading per location with a
// freshness TTL on UpdatedAt. Stale records are treated as absent by every
// operation; plain reads never refresh UpdatedAt.
type ReadingCache interface {
	Get(ctx context.Context, location string) (models.WeatherReading, bool, error)
	// Put stores a complete externally fetched reading, refreshing UpdatedAt
	// and preserving CreatedAt when the location already has a record.
	Put(ctx context.Context, reading models.WeatherReading) (models.WeatherReading, error)
	// Promote writes a community-resolved condition and rank, keeping any
	// existing numeric fields, creating the record when absent.
	Promote(ctx context.Context, location, condition string, rank int) (models.WeatherReading, error)
	// BumpRank increments the rank of an existing fresh record.
	// Returns ErrNotFound when there is no fresh record.
	BumpRank(ctx context.Context, location string) (models.WeatherReading, error)
	// SelectCondition overrides the condition of an existing fresh record
	// and increments its rank. Returns ErrNotFound when there is no fresh record.
	SelectCondition(ctx context.Context, location, condition string) (models.WeatherReading, error)
	// Flush clears every record. Run by the daily sweep.
	Flush(ctx context.Context) error
}
