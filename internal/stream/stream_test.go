package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"saylau.org/internal/ballot"
	"saylau.org/internal/election"
	"saylau.org/internal/roster"
	"saylau.org/internal/store/memory"
	"saylau.org/internal/stream"
)

func seedFeedElection(t *testing.T) (*memory.Store, election.Election, election.Position, election.Candidate, roster.User) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	e, err := store.CreateElection(ctx, election.Election{
		Name: "Student Council", AcademicYear: "2025-2026", IsActive: true,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour), Code: "123123",
	})
	if err != nil {
		t.Fatalf("CreateElection: %v", err)
	}
	p, err := store.CreatePosition(ctx, election.Position{ElectionID: e.ID, Name: "President", SeatsCount: 1})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	c, err := store.CreateCandidate(ctx, election.Candidate{PositionID: p.ID, Name: "Aigerim"})
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	u, err := store.CreateUser(ctx, roster.User{StudentID: "21-0001", Role: "voter", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return store, e, p, c, u
}

func TestSubscribeDeliversSnapshotAndUpdates(t *testing.T) {
	store, e, pos, cand, voter := seedFeedElection(t)
	agg := ballot.NewAggregator(store, store, store)
	feed := stream.NewFeed(agg, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, e.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var first ballot.ResultsPayload
	select {
	case frame := <-ch:
		if err := json.Unmarshal(frame, &first); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
	if first.TotalVotes != 0 {
		t.Fatalf("initial totalVotes = %d, want 0", first.TotalVotes)
	}

	svc := ballot.NewService(store, store, store)
	if _, err := svc.Cast(context.Background(), voter.ID, e.ID, pos.ID, cand.ID); err != nil {
		t.Fatalf("Cast: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				t.Fatal("channel closed before update arrived")
			}
			var got ballot.ResultsPayload
			if err := json.Unmarshal(frame, &got); err != nil {
				t.Fatalf("unmarshal update: %v", err)
			}
			if got.TotalVotes == 1 {
				return
			}
		case <-deadline:
			t.Fatal("update with the cast vote never arrived")
		}
	}
}

func TestPollerStopsAfterLastUnsubscribe(t *testing.T) {
	store, e, _, _, _ := seedFeedElection(t)
	agg := ballot.NewAggregator(store, store, store)
	feed := stream.NewFeed(agg, 10*time.Millisecond)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	if _, err := feed.Subscribe(ctx1, e.ID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := feed.Subscribe(ctx2, e.ID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := feed.ActivePollers(); got != 1 {
		t.Fatalf("pollers = %d, want 1 shared loop", got)
	}

	cancel1()
	cancel2()

	deadline := time.After(2 * time.Second)
	for feed.ActivePollers() != 0 {
		select {
		case <-deadline:
			t.Fatalf("poller still running: %d", feed.ActivePollers())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubscribeUnknownElection(t *testing.T) {
	store := memory.New()
	feed := stream.NewFeed(ballot.NewAggregator(store, store, store), time.Second)

	_, err := feed.Subscribe(context.Background(), 404)
	if !errors.Is(err, ballot.ErrElectionNotFound) {
		t.Fatalf("err = %v, want ErrElectionNotFound", err)
	}
}
