package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/models"
	"github.com/hkealoha/town-weather-service/internal/store"
	"github.com/hkealoha/town-weather-service/internal/validation"
)

type fixture struct {
	engine *Engine
	users  *store.InMemoryUserStore
	ledger *store.InMemoryVoteLedger
	cache  *store.InMemoryReadingCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := store.NewInMemoryUserStore()
	ledger := store.NewInMemoryVoteLedger()
	cache := store.NewInMemoryReadingCache(time.Hour)
	return &fixture{
		engine: New(ledger, users, cache, 3, 5, time.Hour, zap.NewNop()),
		users:  users,
		ledger: ledger,
		cache:  cache,
	}
}

func (f *fixture) guest(t *testing.T) models.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	return u
}

func TestSubmitVote_MissingVoter(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SubmitVote(context.Background(), "", "Lihue", "Rain")
	if !errors.Is(err, ErrMissingVoter) {
		t.Fatalf("SubmitVote() error = %v, want ErrMissingVoter", err)
	}
	// No storage access happened.
	votes, _ := f.ledger.ListByLocation(context.Background(), "lihue")
	if len(votes) != 0 {
		t.Errorf("ledger has %d votes, want 0", len(votes))
	}
}

func TestSubmitVote_UnknownCondition(t *testing.T) {
	f := newFixture(t)
	u := f.guest(t)
	_, err := f.engine.SubmitVote(context.Background(), u.ID, "Lihue", "Sunny-ish")
	if !errors.Is(err, validation.ErrUnknownCondition) {
		t.Fatalf("SubmitVote() error = %v, want ErrUnknownCondition", err)
	}
}

// TestSubmitVote_BelowThreshold verifies the threshold gate: below the
// weighted threshold no cache write and no reputation change happen.
func TestSubmitVote_BelowThreshold(t *testing.T) {
	f := newFixture(t)
	u := f.guest(t)

	res, err := f.engine.SubmitVote(context.Background(), u.ID, "Lihue", "Rain")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v, want nil", err)
	}
	if res.Resolved {
		t.Fatal("Resolved = true below threshold, want false")
	}
	if res.VoteCount != 1 {
		t.Errorf("VoteCount = %d, want 1", res.VoteCount)
	}
	if _, ok, _ := f.cache.Get(context.Background(), "lihue"); ok {
		t.Error("cache written below threshold")
	}
	after, _ := f.users.Get(context.Background(), u.ID)
	if after.Reputation != 1 {
		t.Errorf("reputation = %d, want unchanged 1", after.Reputation)
	}
}

// TestSubmitVote_ThreeGuestsResolve walks three distinct guests voting Rain
// for the same town: weighted sum 3 meets the threshold, the cache record is
// promoted with rank 3, and every voter ends at reputation 2.
func TestSubmitVote_ThreeGuestsResolve(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 3; i++ {
		u, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})
		ids = append(ids, u.ID)
	}

	for i, id := range ids[:2] {
		res, err := f.engine.SubmitVote(context.Background(), id, "Lihue", "Rain")
		if err != nil {
			t.Fatalf("vote %d error = %v", i, err)
		}
		if res.Resolved {
			t.Fatalf("vote %d resolved early", i)
		}
	}

	res, err := f.engine.SubmitVote(context.Background(), ids[2], "Lihue", "Rain")
	if err != nil {
		t.Fatalf("third vote error = %v", err)
	}
	if !res.Resolved || res.Condition != "Rain" {
		t.Fatalf("third vote = %+v, want resolved Rain", res)
	}
	if res.Reading.Rank != 3 || res.Reading.Condition != "Rain" {
		t.Errorf("reading = %+v, want Rain rank 3", res.Reading)
	}

	cached, ok, _ := f.cache.Get(context.Background(), "lihue")
	if !ok || cached.Condition != "Rain" || cached.Rank != 3 {
		t.Errorf("cache = %+v ok=%v, want Rain rank 3", cached, ok)
	}

	for _, id := range ids {
		u, _ := f.users.Get(context.Background(), id)
		if u.Reputation != 2 {
			t.Errorf("voter %s reputation = %d, want 2", id, u.Reputation)
		}
	}
}

// TestSubmitVote_FederatedResolvesAlone verifies a reputation-10 voter
// clears the threshold with a single vote.
func TestSubmitVote_FederatedResolvesAlone(t *testing.T) {
	f := newFixture(t)
	u, _ := f.users.Create(context.Background(), models.User{GoogleID: "sub", Reputation: 10})

	res, err := f.engine.SubmitVote(context.Background(), u.ID, "Hanalei", "Clear")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if !res.Resolved || res.Condition != "Clear" {
		t.Fatalf("result = %+v, want resolved Clear", res)
	}
	if res.Reading.Rank != 10 {
		t.Errorf("rank = %d, want weighted total 10", res.Reading.Rank)
	}
	after, _ := f.users.Get(context.Background(), u.ID)
	if after.Reputation != 11 {
		t.Errorf("reputation = %d, want 11", after.Reputation)
	}
}

// TestSubmitVote_RateCap verifies votes 1-5 within the hour are accepted and
// the 6th is rejected, while other locations stay unaffected.
func TestSubmitVote_RateCap(t *testing.T) {
	f := newFixture(t)
	u := f.guest(t)

	for i := 0; i < 5; i++ {
		if _, err := f.engine.SubmitVote(context.Background(), u.ID, "Koloa", "Rain"); err != nil {
			t.Fatalf("vote %d error = %v, want accepted", i+1, err)
		}
	}

	// The 6th vote is rejected regardless of condition.
	if _, err := f.engine.SubmitVote(context.Background(), u.ID, "Koloa", "Clear"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("sixth vote error = %v, want ErrRateLimited", err)
	}

	// A different location gets its own cap.
	if _, err := f.engine.SubmitVote(context.Background(), u.ID, "Lihue", "Rain"); err != nil {
		t.Errorf("different-location vote error = %v, want accepted", err)
	}

	votes, _ := f.ledger.ListByLocation(context.Background(), "koloa")
	if len(votes) != 5 {
		t.Errorf("koloa ledger has %d votes, want 5", len(votes))
	}
}

// TestSubmitVote_RepeatedMatchingVotes verifies each matching historical vote
// earns its own reputation point on resolution.
func TestSubmitVote_RepeatedMatchingVotes(t *testing.T) {
	f := newFixture(t)
	u := f.guest(t)

	// Two votes from the same guest (weight 1 each), then a third voter
	// pushes the total to 3: the double voter gets +2.
	_, _ = f.engine.SubmitVote(context.Background(), u.ID, "Koloa", "Rain")
	_, _ = f.engine.SubmitVote(context.Background(), u.ID, "Koloa", "Rain")
	other, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})

	res, err := f.engine.SubmitVote(context.Background(), other.ID, "Koloa", "Rain")
	if err != nil || !res.Resolved {
		t.Fatalf("third vote = %+v, %v, want resolved", res, err)
	}

	after, _ := f.users.Get(context.Background(), u.ID)
	if after.Reputation != 3 {
		t.Errorf("double voter reputation = %d, want 3 (+1 per matching vote)", after.Reputation)
	}
}

// TestSubmitVote_UnknownVoterWeightsOne verifies a vote from an id with no
// user record still counts with the default weight.
func TestSubmitVote_UnknownVoterWeightsOne(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.SubmitVote(context.Background(), "ghost-1", "Lihue", "Rain")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if res.Resolved || res.VoteCount != 1 {
		t.Errorf("result = %+v, want unresolved count 1", res)
	}
}

// TestTally_Idempotent recomputes the tally twice with no new votes and
// expects identical winner and total.
func TestTally_Idempotent(t *testing.T) {
	f := newFixture(t)
	u := f.guest(t)
	_, _ = f.engine.SubmitVote(context.Background(), u.ID, "Lihue", "Rain")
	_, _ = f.engine.SubmitVote(context.Background(), u.ID, "Lihue", "Clouds")

	w1, t1, err := f.engine.Tally(context.Background(), "lihue")
	if err != nil {
		t.Fatalf("Tally() error = %v", err)
	}
	w2, t2, err := f.engine.Tally(context.Background(), "lihue")
	if err != nil {
		t.Fatalf("Tally() error = %v", err)
	}
	if w1 != w2 || t1 != t2 {
		t.Errorf("Tally() not idempotent: (%q,%d) vs (%q,%d)", w1, t1, w2, t2)
	}
}

// TestTally_TieBreakFirstSeen verifies a weight tie goes to the condition
// that appeared first in ledger order.
func TestTally_TieBreakFirstSeen(t *testing.T) {
	f := newFixture(t)
	a, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})
	b, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})

	_, _ = f.engine.SubmitVote(context.Background(), a.ID, "Kekaha", "Clouds")
	_, _ = f.engine.SubmitVote(context.Background(), b.ID, "Kekaha", "Rain")

	winner, total, err := f.engine.Tally(context.Background(), "kekaha")
	if err != nil {
		t.Fatalf("Tally() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if winner != "Clouds" {
		t.Errorf("winner = %q, want first-seen Clouds on tie", winner)
	}
}

// TestTally_WeightedWinner verifies a high-reputation voter outweighs more
// numerous low-reputation votes.
func TestTally_WeightedWinner(t *testing.T) {
	f := newFixture(t)
	heavy, _ := f.users.Create(context.Background(), models.User{GoogleID: "sub", Reputation: 10})
	g1, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})
	g2, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})

	// Recorded straight into the ledger so no resolution side effects
	// (reputation awards) shift the weights under the tally.
	for _, v := range []models.Vote{
		{VoterID: g1.ID, Location: "lihue", Condition: "Clear"},
		{VoterID: g2.ID, Location: "lihue", Condition: "Clear"},
		{VoterID: heavy.ID, Location: "lihue", Condition: "Rain"},
	} {
		v.Timestamp = time.Now()
		if _, err := f.ledger.Record(context.Background(), v); err != nil {
			t.Fatalf("record vote: %v", err)
		}
	}

	winner, total, _ := f.engine.Tally(context.Background(), "lihue")
	if winner != "Rain" || total != 12 {
		t.Errorf("Tally() = %q/%d, want Rain/12", winner, total)
	}
}

func TestResolvedCondition(t *testing.T) {
	f := newFixture(t)
	u, _ := f.users.Create(context.Background(), models.User{GoogleID: "sub", Reputation: 10})

	// No votes yet: no override.
	if _, ok, _ := f.engine.ResolvedCondition(context.Background(), "Lihue"); ok {
		t.Fatal("ResolvedCondition() ok = true with no votes")
	}

	_, _ = f.engine.SubmitVote(context.Background(), u.ID, "Lihue", "Drizzle")
	cond, ok, err := f.engine.ResolvedCondition(context.Background(), "Lihue")
	if err != nil {
		t.Fatalf("ResolvedCondition() error = %v", err)
	}
	if !ok || cond != "Drizzle" {
		t.Errorf("ResolvedCondition() = %q/%v, want Drizzle/true", cond, ok)
	}
}

// TestSubmitVote_NormalizesLocation verifies the okina spelling and the
// canonical spelling land in the same tally.
func TestSubmitVote_NormalizesLocation(t *testing.T) {
	f := newFixture(t)
	a, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})
	b, _ := f.users.Create(context.Background(), models.User{GuestID: "g", Reputation: 1})

	_, _ = f.engine.SubmitVote(context.Background(), a.ID, "Kapaʻa", "Rain")
	_, _ = f.engine.SubmitVote(context.Background(), b.ID, "kapa'a", "Rain")

	votes, _ := f.ledger.ListByLocation(context.Background(), "kapa'a")
	if len(votes) != 2 {
		t.Errorf("canonical key holds %d votes, want 2", len(votes))
	}
}
