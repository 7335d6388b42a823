package store

import (
	"context"
	"testing"
	"time"

	"github.com/hkealoha/town-weather-service/internal/models"
)

func TestInMemoryVoteLedger_RecordAndList(t *testing.T) {
	l := NewInMemoryVoteLedger()

	// Duplicates accumulate: same voter, same location, same condition.
	for i := 0; i < 3; i++ {
		id, err := l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "koloa", Condition: "Rain"})
		if err != nil {
			t.Fatalf("Record() error = %v, want nil", err)
		}
		if id == "" {
			t.Fatal("Record() returned empty id")
		}
	}

	votes, err := l.ListByLocation(context.Background(), "koloa")
	if err != nil {
		t.Fatalf("ListByLocation() error = %v, want nil", err)
	}
	if len(votes) != 3 {
		t.Fatalf("ListByLocation() returned %d votes, want 3", len(votes))
	}

	other, _ := l.ListByLocation(context.Background(), "lihue")
	if len(other) != 0 {
		t.Errorf("ListByLocation(lihue) returned %d votes, want 0", len(other))
	}
}

func TestInMemoryVoteLedger_ListByLocation_InsertionOrder(t *testing.T) {
	l := NewInMemoryVoteLedger()
	conds := []string{"Rain", "Clear", "Rain", "Clouds"}
	for _, c := range conds {
		_, _ = l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "lihue", Condition: c})
	}

	votes, _ := l.ListByLocation(context.Background(), "lihue")
	for i, v := range votes {
		if v.Condition != conds[i] {
			t.Fatalf("votes[%d].Condition = %q, want %q (insertion order)", i, v.Condition, conds[i])
		}
	}
}

func TestInMemoryVoteLedger_CountRecent(t *testing.T) {
	l := NewInMemoryVoteLedger()
	now := time.Now()

	// Two recent votes, one outside the window, one from another voter,
	// one for another location.
	_, _ = l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "koloa", Condition: "Rain", Timestamp: now.Add(-10 * time.Minute)})
	_, _ = l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "koloa", Condition: "Rain", Timestamp: now.Add(-50 * time.Minute)})
	_, _ = l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "koloa", Condition: "Rain", Timestamp: now.Add(-2 * time.Hour)})
	_, _ = l.Record(context.Background(), models.Vote{VoterID: "u2", Location: "koloa", Condition: "Rain", Timestamp: now.Add(-5 * time.Minute)})
	_, _ = l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "lihue", Condition: "Rain", Timestamp: now.Add(-5 * time.Minute)})

	n, err := l.CountRecent(context.Background(), "u1", "koloa", time.Hour)
	if err != nil {
		t.Fatalf("CountRecent() error = %v, want nil", err)
	}
	if n != 2 {
		t.Errorf("CountRecent() = %d, want 2", n)
	}
}

func TestInMemoryVoteLedger_ListByLocation_ReturnsCopy(t *testing.T) {
	l := NewInMemoryVoteLedger()
	_, _ = l.Record(context.Background(), models.Vote{VoterID: "u1", Location: "koloa", Condition: "Rain"})

	votes, _ := l.ListByLocation(context.Background(), "koloa")
	votes[0].Condition = "Clear"

	again, _ := l.ListByLocation(context.Background(), "koloa")
	if again[0].Condition != "Rain" {
		t.Error("mutating the returned slice changed the ledger")
	}
}
