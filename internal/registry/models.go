package registry

import (
	"time"

	"livewatcher/internal/fetcher"
)

// LifecycleState tracks where a broadcast is in its life. Transitions
// are monotonic: upcoming -> live -> ended, with ended terminal.
type LifecycleState string

const (
	StateUpcoming LifecycleState = "upcoming"
	StateLive     LifecycleState = "live"
	StateEnded    LifecycleState = "ended"
)

// StateFromStatus maps an upstream status string onto a lifecycle state.
func StateFromStatus(status string) LifecycleState {
	if status == fetcher.StatusLive {
		return StateLive
	}
	return StateUpcoming
}

// BroadcastRecord is the registry's view of one tracked broadcast.
// Callers only ever receive value copies; the registry owns the
// authoritative instance.
type BroadcastRecord struct {
	VideoID        string
	ChannelID      string
	ChannelName    string
	Title          string
	State          LifecycleState
	ScheduledStart *time.Time
	ActualStart    *time.Time
	LastSampledAt  *time.Time
	FirstSeenAt    time.Time
}

// Sample is one immutable engagement observation for one broadcast at
// one instant. Lifecycle and schedule fields are copied from the record
// at collection time so the sample stands on its own.
type Sample struct {
	VideoID           string
	CollectedAt       time.Time
	ConcurrentViewers int64
	LikeCount         int64
	CommentCount      int64
	State             LifecycleState
	ScheduledStart    *time.Time
	ActualStart       *time.Time
}

// EventKind labels renderer-facing events.
type EventKind string

const (
	EventNewStream EventKind = "new_stream"
	EventWentLive  EventKind = "went_live"
	EventSampled   EventKind = "sampled"
	EventEnded     EventKind = "ended"
)

// Event is published to the console renderer. Sample is set only for
// EventSampled.
type Event struct {
	Kind   EventKind
	Record BroadcastRecord
	Sample *Sample
	At     time.Time
}
