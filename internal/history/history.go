package history

import (
	"sync"

	"livewatcher/internal/registry"
)

// Buffer keeps the last N samples per video id for trend rendering.
// Entries are insertion ordered and the oldest is evicted first; the
// durable copies live in the sinks, this window is display only.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	series   map[string][]registry.Sample
}

// NewBuffer constructs a buffer holding up to capacity samples per id.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("history buffer capacity must be positive")
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[string][]registry.Sample),
	}
}

// Append pushes a sample onto its video's ring, evicting the oldest
// entry when at capacity.
func (b *Buffer) Append(sample registry.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[sample.VideoID]
	if len(s) == b.capacity {
		copy(s, s[1:])
		s = s[:len(s)-1]
	}
	b.series[sample.VideoID] = append(s, sample)
}

// Snapshot returns a copy of the retained samples for one video in
// chronological order. Unknown ids yield an empty slice, never an error.
func (b *Buffer) Snapshot(videoID string) []registry.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[videoID]
	out := make([]registry.Sample, len(s))
	copy(out, s)
	return out
}

// Len reports how many samples are retained for one video.
func (b *Buffer) Len(videoID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.series[videoID])
}
