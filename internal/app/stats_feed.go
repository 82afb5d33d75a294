package app

import (
	"sync"

	"nikkei-quiz-service/internal/domain"
)

// StatsFeed fans out stats snapshots to live subscribers, keyed by identity.
type StatsFeed struct {
	mu          sync.Mutex
	subscribers map[domain.Identity]map[chan domain.Stats]struct{}
}

func NewStatsFeed() *StatsFeed {
	return &StatsFeed{subscribers: make(map[domain.Identity]map[chan domain.Stats]struct{})}
}

func (f *StatsFeed) subscribe(identity domain.Identity, initial domain.Stats) (<-chan domain.Stats, func()) {
	ch := make(chan domain.Stats, 8)
	ch <- initial

	f.mu.Lock()
	subs, ok := f.subscribers[identity]
	if !ok {
		subs = make(map[chan domain.Stats]struct{})
		f.subscribers[identity] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[identity]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(f.subscribers, identity)
		}
	}
	return ch, cancel
}

func (f *StatsFeed) broadcast(identity domain.Identity, stats domain.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[identity] {
		snapshot := stats.Clone()
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest pending update so a slow reader never blocks the writer.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func (f *StatsFeed) subscriberCount(identity domain.Identity) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[identity])
}
