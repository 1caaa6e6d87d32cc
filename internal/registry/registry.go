package registry

import (
	"sort"
	"sync"
	"time"

	"livewatcher/internal/fetcher"
)

// Registry is the authoritative in-memory map of tracked broadcasts.
// Both polling loops mutate it; every access happens under one mutex
// with the critical section kept to map work only, never network I/O.
type Registry struct {
	mu      sync.Mutex
	records map[string]*BroadcastRecord
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*BroadcastRecord)}
}

// Reconcile folds one channel's discovery results into the registry and
// returns the lifecycle events they caused, in a stable order.
//
//   - unseen video id: a record is inserted and EventNewStream emitted.
//   - known id observed live while upcoming: transition, actualStart
//     set once, EventWentLive emitted.
//   - known non-ended id for this channel absent from the results:
//     transition to ended, EventEnded emitted. The record is retained
//     but becomes ineligible for sampling.
//
// An id that already ended is ignored even if it reappears; the
// platform does not restart ended broadcasts under the same id.
func (r *Registry) Reconcile(channelID string, summaries []fetcher.BroadcastSummary, now time.Time) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []Event
	seen := make(map[string]struct{}, len(summaries))

	for _, s := range summaries {
		if s.ChannelID != channelID {
			continue
		}
		seen[s.VideoID] = struct{}{}

		rec, ok := r.records[s.VideoID]
		if !ok {
			rec = &BroadcastRecord{
				VideoID:        s.VideoID,
				ChannelID:      s.ChannelID,
				ChannelName:    s.ChannelName,
				Title:          s.Title,
				State:          StateFromStatus(s.Status),
				ScheduledStart: s.ScheduledStart,
				FirstSeenAt:    now,
			}
			if rec.State == StateLive {
				ts := now
				rec.ActualStart = &ts
			}
			r.records[s.VideoID] = rec
			events = append(events, Event{Kind: EventNewStream, Record: *rec, At: now})
			continue
		}

		if rec.State == StateEnded {
			continue
		}

		// Display metadata may be refreshed at any time.
		if s.ChannelName != "" {
			rec.ChannelName = s.ChannelName
		}
		if s.Title != "" {
			rec.Title = s.Title
		}
		if rec.ScheduledStart == nil && s.ScheduledStart != nil {
			rec.ScheduledStart = s.ScheduledStart
		}

		if rec.State == StateUpcoming && StateFromStatus(s.Status) == StateLive {
			rec.State = StateLive
			if rec.ActualStart == nil {
				ts := now
				rec.ActualStart = &ts
			}
			events = append(events, Event{Kind: EventWentLive, Record: *rec, At: now})
		}
	}

	// Anything this channel tracked that discovery no longer reports
	// has ended server-side.
	for _, rec := range r.records {
		if rec.ChannelID != channelID || rec.State == StateEnded {
			continue
		}
		if _, ok := seen[rec.VideoID]; ok {
			continue
		}
		rec.State = StateEnded
		events = append(events, Event{Kind: EventEnded, Record: *rec, At: now})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Record.VideoID < events[j].Record.VideoID
	})
	return events
}

// LiveBroadcasts snapshots the records currently eligible for sampling.
func (r *Registry) LiveBroadcasts() []BroadcastRecord {
	return r.snapshot(func(rec *BroadcastRecord) bool { return rec.State == StateLive })
}

// ActiveBroadcasts snapshots the records that are live or upcoming,
// for the operator view.
func (r *Registry) ActiveBroadcasts() []BroadcastRecord {
	return r.snapshot(func(rec *BroadcastRecord) bool { return rec.State != StateEnded })
}

// AllBroadcasts snapshots every record, ended ones included.
func (r *Registry) AllBroadcasts() []BroadcastRecord {
	return r.snapshot(func(*BroadcastRecord) bool { return true })
}

func (r *Registry) snapshot(keep func(*BroadcastRecord) bool) []BroadcastRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BroadcastRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out
}

// Get returns a copy of one record.
func (r *Registry) Get(videoID string) (BroadcastRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[videoID]
	if !ok {
		return BroadcastRecord{}, false
	}
	return *rec, true
}

// MarkEnded transitions a record to ended out of the discovery cycle,
// used when a stats call reveals the broadcast already finished. It
// reports false when the id is unknown or the record had already ended.
func (r *Registry) MarkEnded(videoID string) (BroadcastRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[videoID]
	if !ok || rec.State == StateEnded {
		return BroadcastRecord{}, false
	}
	rec.State = StateEnded
	return *rec, true
}

// RecordSample stamps lastSampledAt and backfills schedule timestamps
// the stats endpoint reported before discovery did. It returns the
// updated record copy the sample should be built from.
func (r *Registry) RecordSample(videoID string, stats fetcher.BroadcastStats, now time.Time) (BroadcastRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[videoID]
	if !ok || rec.State == StateEnded {
		return BroadcastRecord{}, false
	}

	ts := now
	rec.LastSampledAt = &ts
	if rec.ScheduledStart == nil && stats.ScheduledStart != nil {
		rec.ScheduledStart = stats.ScheduledStart
	}
	if rec.ActualStart == nil && stats.ActualStart != nil {
		rec.ActualStart = stats.ActualStart
	}

	return *rec, true
}

// Len reports the number of tracked records, ended ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
