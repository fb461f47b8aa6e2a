// Package stream fans live election results out to SSE subscribers. One
// poll loop runs per election with at least one subscriber; the loop stops
// when the last subscriber leaves.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"saylau.org/internal/ballot"
	"saylau.org/internal/obs"
)

// DefaultInterval matches the portal's live-results refresh cadence.
const DefaultInterval = 5 * time.Second

const subscriberBuffer = 8

// ResultsSource computes the aggregated payload for one election.
type ResultsSource interface {
	Results(ctx context.Context, electionID int) (*ballot.ResultsPayload, error)
}

// Feed multiplexes poll loops across elections.
type Feed struct {
	source   ResultsSource
	interval time.Duration

	mu      sync.Mutex
	pollers map[int]*poller
}

type poller struct {
	nextSub int
	subs    map[int]chan []byte
	stop    chan struct{}
}

// NewFeed builds a feed over the given source. A non-positive interval
// falls back to DefaultInterval.
func NewFeed(source ResultsSource, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feed{
		source:   source,
		interval: interval,
		pollers:  map[int]*poller{},
	}
}

// Subscribe registers a listener for one election. The channel receives an
// initial snapshot followed by interval updates, and is closed when ctx is
// done. Slow consumers miss frames rather than block the loop.
func (f *Feed) Subscribe(ctx context.Context, electionID int) (<-chan []byte, error) {
	snapshot, err := f.snapshot(ctx, electionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, subscriberBuffer)
	ch <- snapshot

	f.mu.Lock()
	p, ok := f.pollers[electionID]
	if !ok {
		p = &poller{subs: map[int]chan []byte{}, stop: make(chan struct{})}
		f.pollers[electionID] = p
		go f.run(electionID, p)
	}
	p.nextSub++
	subID := p.nextSub
	p.subs[subID] = ch
	f.mu.Unlock()
	obs.SSESubscribers.Inc()

	go func() {
		<-ctx.Done()
		f.unsubscribe(electionID, subID)
	}()
	return ch, nil
}

func (f *Feed) unsubscribe(electionID, subID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pollers[electionID]
	if !ok {
		return
	}
	ch, ok := p.subs[subID]
	if !ok {
		return
	}
	delete(p.subs, subID)
	close(ch)
	obs.SSESubscribers.Dec()
	if len(p.subs) == 0 {
		close(p.stop)
		delete(f.pollers, electionID)
	}
}

func (f *Feed) run(electionID int, p *poller) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		payload, err := f.snapshot(context.Background(), electionID)
		if err != nil {
			obs.LogRequest(map[string]any{
				"ts":          time.Now().UTC().Format(time.RFC3339Nano),
				"level":       "error",
				"msg":         "results_poll_failed",
				"election_id": electionID,
				"error":       err.Error(),
			})
			continue
		}

		f.mu.Lock()
		for _, ch := range p.subs {
			select {
			case ch <- payload:
			default:
			}
		}
		f.mu.Unlock()
	}
}

func (f *Feed) snapshot(ctx context.Context, electionID int) ([]byte, error) {
	res, err := f.source.Results(ctx, electionID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// ActivePollers reports how many election poll loops are running. Test
// helper.
func (f *Feed) ActivePollers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pollers)
}
