package events

import (
	"cmp"
	"context"
	"slices"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// SinkMemory is the name of the in-memory sink.
const SinkMemory = "memory"

type memoryEntry struct {
	seq uint64
	env Envelope
}

// MemoryPublisher keeps published events in process for a retention window.
// It backs tests, local development and the recent events endpoint.
type MemoryPublisher struct {
	cache *gocache.Cache
	seq   atomic.Uint64
}

// NewMemoryPublisher creates the sink. A retention of zero keeps events until Reset.
func NewMemoryPublisher(retention time.Duration) *MemoryPublisher {
	expiration, cleanup := gocache.NoExpiration, time.Duration(0)
	if retention > 0 {
		expiration, cleanup = retention, retention
	}

	return &MemoryPublisher{cache: gocache.New(expiration, cleanup)}
}

// Name implements app.EventSink.
func (p *MemoryPublisher) Name() string {
	return SinkMemory
}

// Publish implements ports.EventPublisher.
func (p *MemoryPublisher) Publish(_ context.Context, event ports.Event) error {
	env, err := NewEnvelope(event)
	if err != nil {
		return err
	}

	p.cache.SetDefault(env.ID, memoryEntry{seq: p.seq.Add(1), env: env})

	return nil
}

// Events returns the retained events in publish order.
func (p *MemoryPublisher) Events() []Envelope {
	items := p.cache.Items()

	entries := make([]memoryEntry, 0, len(items))
	for _, item := range items {
		if e, ok := item.Object.(memoryEntry); ok {
			entries = append(entries, e)
		}
	}

	slices.SortFunc(entries, func(a, b memoryEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]Envelope, len(entries))
	for i, e := range entries {
		out[i] = e.env
	}

	return out
}

// Recent returns up to n of the newest retained events, newest last.
func (p *MemoryPublisher) Recent(n int) []Envelope {
	all := p.Events()
	if n <= 0 || n >= len(all) {
		return all
	}

	return all[len(all)-n:]
}

// Len returns the number of retained events.
func (p *MemoryPublisher) Len() int {
	return p.cache.ItemCount()
}

// Reset drops every retained event.
func (p *MemoryPublisher) Reset() {
	p.cache.Flush()
}

// Check implements ports.HealthChecker. Memory is always available.
func (p *MemoryPublisher) Check(context.Context) error {
	return nil
}
