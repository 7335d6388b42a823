package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/models"
	"github.com/hkealoha/town-weather-service/internal/normalize"
	"github.com/hkealoha/town-weather-service/internal/observability"
	"github.com/hkealoha/town-weather-service/internal/store"
	"github.com/hkealoha/town-weather-service/internal/validation"
)

// ErrMissingVoter is returned when a vote arrives without a voter identity.
var ErrMissingVoter = errors.New("voter id is required")

// ErrRateLimited is returned when a voter exceeds the hourly cap for a location.
var ErrRateLimited = errors.New("vote limit exceeded")

// lockStripes bounds the number of per-(voter,location) mutexes. The stripe
// keeps check-then-insert a single logical unit so concurrent submissions
// cannot blow past the cap together; colliding pairs just serialize.
const lockStripes = 64

// defaultVoteWeight applies when a voter record cannot be resolved.
const defaultVoteWeight = 1

// Engine turns raw votes into an authoritative community condition per
// location: it rate-limits submissions, appends them to the ledger,
// recomputes the reputation-weighted tally, and once the weighted mass clears
// the threshold promotes the winner into the reading cache and rewards the
// voters who called it.
type Engine struct {
	ledger     store.VoteLedger
	users      store.UserStore
	cache      store.ReadingCache
	threshold  int
	voteCap    int
	voteWindow time.Duration
	logger     *zap.Logger

	locks [lockStripes]sync.Mutex
}

// Result is the outcome of a vote submission. When Resolved, Reading holds
// the promoted cache record; otherwise VoteCount carries the running
// weighted total for the location.
type Result struct {
	Resolved  bool
	Condition string
	Reading   models.WeatherReading
	VoteCount int
}

// New creates an Engine. threshold is the minimum weighted vote mass before a
// community condition is promoted; voteCap/voteWindow bound one voter's
// submissions per location.
func New(ledger store.VoteLedger, users store.UserStore, cache store.ReadingCache, threshold, voteCap int, voteWindow time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		ledger:     ledger,
		users:      users,
		cache:      cache,
		threshold:  threshold,
		voteCap:    voteCap,
		voteWindow: voteWindow,
		logger:     logger,
	}
}

// SubmitVote records a condition vote and recomputes the location's tally.
// Fails with ErrMissingVoter or validation.ErrUnknownCondition before any
// storage access, and with ErrRateLimited when the voter is over the cap.
func (e *Engine) SubmitVote(ctx context.Context, voterID, location, condition string) (Result, error) {
	if voterID == "" {
		return Result{}, ErrMissingVoter
	}
	if err := validation.ValidateCondition(condition); err != nil {
		return Result{}, err
	}
	key := normalize.Location(location)

	stripe := e.stripe(voterID, key)
	stripe.Lock()
	recent, err := e.ledger.CountRecent(ctx, voterID, key, e.voteWindow)
	if err != nil {
		stripe.Unlock()
		return Result{}, fmt.Errorf("count recent votes: %w", err)
	}
	if recent >= e.voteCap {
		stripe.Unlock()
		observability.VotesRateLimitedTotal.Inc()
		return Result{}, ErrRateLimited
	}

	_, err = e.ledger.Record(ctx, models.Vote{
		VoterID:   voterID,
		Location:  key,
		Condition: condition,
		Timestamp: time.Now(),
	})
	stripe.Unlock()
	if err != nil {
		return Result{}, fmt.Errorf("record vote: %w", err)
	}
	observability.VotesSubmittedTotal.WithLabelValues(condition).Inc()

	winner, total, err := e.Tally(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("tally votes: %w", err)
	}

	if total < e.threshold {
		e.logger.Debug("vote recorded below threshold",
			zap.String("location", key),
			zap.String("condition", condition),
			zap.Int("weighted_count", total))
		return Result{VoteCount: total}, nil
	}

	reading, err := e.cache.Promote(ctx, key, winner, total)
	if err != nil {
		return Result{}, fmt.Errorf("promote condition: %w", err)
	}
	observability.VotesResolvedTotal.Inc()
	e.rewardMatchingVoters(ctx, key, winner)

	e.logger.Info("community condition resolved",
		zap.String("location", key),
		zap.String("condition", winner),
		zap.Int("rank", total))
	return Result{Resolved: true, Condition: winner, Reading: reading, VoteCount: total}, nil
}

// Tally recomputes the weighted condition distribution for a location from
// the ledger, with no side effects. Returns the winning condition and the
// total weighted mass across all conditions. The winner is the condition
// with the strictly greatest weight; ties go to the condition seen first in
// ledger order. Safe to call at any time: the tally is fully re-derivable.
func (e *Engine) Tally(ctx context.Context, location string) (winner string, total int, err error) {
	votes, err := e.ledger.ListByLocation(ctx, location)
	if err != nil {
		return "", 0, fmt.Errorf("list votes: %w", err)
	}
	if len(votes) == 0 {
		return "", 0, nil
	}

	weights := make(map[string]int)
	var order []string
	repCache := make(map[string]int)

	for _, v := range votes {
		w, ok := repCache[v.VoterID]
		if !ok {
			w = defaultVoteWeight
			if user, err := e.users.Get(ctx, v.VoterID); err == nil {
				w = user.Reputation
			}
			repCache[v.VoterID] = w
		}
		if _, seen := weights[v.Condition]; !seen {
			order = append(order, v.Condition)
		}
		weights[v.Condition] += w
		total += w
	}

	best := 0
	for _, cond := range order {
		if weights[cond] > best {
			best = weights[cond]
			winner = cond
		}
	}
	return winner, total, nil
}

// ResolvedCondition returns the community condition for a location when the
// weighted tally clears the threshold, with no side effects. ok is false when
// the threshold is unmet.
func (e *Engine) ResolvedCondition(ctx context.Context, location string) (condition string, ok bool, err error) {
	winner, total, err := e.Tally(ctx, normalize.Location(location))
	if err != nil {
		return "", false, err
	}
	if total < e.threshold || winner == "" {
		return "", false, nil
	}
	return winner, true, nil
}

// rewardMatchingVoters grants +1 reputation per recorded vote that matches
// the resolved condition. Best-effort and sequential: a failure partway
// leaves earlier increments in place, consistent with the no-transaction
// design (the tally itself is always re-derivable).
func (e *Engine) rewardMatchingVoters(ctx context.Context, location, winner string) {
	votes, err := e.ledger.ListByLocation(ctx, location)
	if err != nil {
		e.logger.Warn("list votes for reputation awards", zap.Error(err))
		return
	}
	for _, v := range votes {
		if v.Condition != winner {
			continue
		}
		if _, err := e.users.AddReputation(ctx, v.VoterID, 1); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				e.logger.Warn("reputation award failed",
					zap.String("voter_id", v.VoterID),
					zap.Error(err))
			}
			continue
		}
		observability.ReputationAwardsTotal.Inc()
	}
}

// stripe picks the mutex guarding this voter+location pair.
func (e *Engine) stripe(voterID, location string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voterID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(location))
	return &e.locks[h.Sum32()%lockStripes]
}
