package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hkealoha/town-weather-service/internal/models"
)

// InMemoryVoteLedger is a concurrency-safe append-only VoteLedger keyed by
// location. Votes accumulate without bound; retention is an open policy
// question, so none is enforced here.
type InMemoryVoteLedger struct {
	mu    sync.RWMutex
	byLoc map[string][]models.Vote
}

// NewInMemoryVoteLedger creates an empty InMemoryVoteLedger.
func NewInMemoryVoteLedger() *InMemoryVoteLedger {
	return &InMemoryVoteLedger{byLoc: make(map[string][]models.Vote)}
}

// Record appends the vote. It never rejects well-formed duplicates.
func (l *InMemoryVoteLedger) Record(ctx context.Context, vote models.Vote) (string, error) {
	if vote.ID == "" {
		vote.ID = uuid.New().String()
	}
	if vote.Timestamp.IsZero() {
		vote.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.byLoc[vote.Location] = append(l.byLoc[vote.Location], vote)
	return vote.ID, nil
}

// ListByLocation returns a copy of all votes for the location in insertion order.
func (l *InMemoryVoteLedger) ListByLocation(ctx context.Context, location string) ([]models.Vote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	votes := l.byLoc[location]
	out := make([]models.Vote, len(votes))
	copy(out, votes)
	return out, nil
}

// CountRecent counts the voter's votes for the location within the trailing window.
func (l *InMemoryVoteLedger) CountRecent(ctx context.Context, voterID, location string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, v := range l.byLoc[location] {
		if v.VoterID == voterID && !v.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n, nil
}
