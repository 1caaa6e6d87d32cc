package registry

import (
	"testing"
	"time"

	"livewatcher/internal/fetcher"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func summary(videoID, status string) fetcher.BroadcastSummary {
	return fetcher.BroadcastSummary{
		VideoID:     videoID,
		ChannelID:   "UC123",
		ChannelName: "Test Channel",
		Title:       "Stream " + videoID,
		Status:      status,
	}
}

func eventKinds(events []Event) []EventKind {
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func TestReconcileInsertsUnseenBroadcast(t *testing.T) {
	r := New()

	events := r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "upcoming")}, t0)
	if len(events) != 1 || events[0].Kind != EventNewStream {
		t.Fatalf("expected one EventNewStream, got %v", eventKinds(events))
	}

	rec, ok := r.Get("abc")
	if !ok {
		t.Fatal("record should exist after reconcile")
	}
	if rec.State != StateUpcoming {
		t.Fatalf("expected upcoming state, got %s", rec.State)
	}
	if !rec.FirstSeenAt.Equal(t0) {
		t.Fatalf("firstSeenAt should be set to now, got %s", rec.FirstSeenAt)
	}
	if rec.ActualStart != nil {
		t.Fatal("upcoming broadcast should not have an actual start")
	}
}

func TestUpcomingToLiveEmitsWentLiveOnce(t *testing.T) {
	r := New()
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "upcoming")}, t0)

	t1 := t0.Add(time.Minute)
	events := r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t1)
	if len(events) != 1 || events[0].Kind != EventWentLive {
		t.Fatalf("expected exactly one EventWentLive, got %v", eventKinds(events))
	}

	rec, _ := r.Get("abc")
	if rec.State != StateLive {
		t.Fatalf("expected live state, got %s", rec.State)
	}
	if rec.ActualStart == nil || !rec.ActualStart.Equal(t1) {
		t.Fatalf("actualStart should be set on transition, got %+v", rec.ActualStart)
	}

	// Same observation again must not repeat the event or move actualStart.
	events = r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t1.Add(time.Minute))
	if len(events) != 0 {
		t.Fatalf("repeated live observation emitted events: %v", eventKinds(events))
	}
	rec, _ = r.Get("abc")
	if !rec.ActualStart.Equal(t1) {
		t.Fatal("actualStart 不应被后续观察覆盖")
	}
}

func TestDisappearedBroadcastEnds(t *testing.T) {
	r := New()
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0)

	events := r.Reconcile("UC123", nil, t0.Add(time.Minute))
	if len(events) != 1 || events[0].Kind != EventEnded {
		t.Fatalf("expected one EventEnded, got %v", eventKinds(events))
	}

	rec, ok := r.Get("abc")
	if !ok {
		t.Fatal("ended record must be retained for the process lifetime")
	}
	if rec.State != StateEnded {
		t.Fatalf("expected ended state, got %s", rec.State)
	}
	if len(r.LiveBroadcasts()) != 0 {
		t.Fatal("ended broadcast must be excluded from sampling")
	}
}

func TestEndedIsTerminal(t *testing.T) {
	r := New()
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0)
	r.Reconcile("UC123", nil, t0.Add(time.Minute))

	// The same id reappearing after ended is ignored.
	events := r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0.Add(2*time.Minute))
	if len(events) != 0 {
		t.Fatalf("ended broadcast must not resurrect, got %v", eventKinds(events))
	}
	rec, _ := r.Get("abc")
	if rec.State != StateEnded {
		t.Fatalf("state regressed from ended to %s", rec.State)
	}

	if _, ok := r.MarkEnded("abc"); ok {
		t.Fatal("MarkEnded on an ended record should report false")
	}
}

func TestReconcileScopedToChannel(t *testing.T) {
	r := New()
	other := fetcher.BroadcastSummary{
		VideoID: "zzz", ChannelID: "UC999", ChannelName: "Other", Title: "Other", Status: "live",
	}
	r.Reconcile("UC999", []fetcher.BroadcastSummary{other}, t0)
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0)

	// UC123's empty result set must not end UC999's broadcast.
	events := r.Reconcile("UC123", nil, t0.Add(time.Minute))
	if len(events) != 1 || events[0].Record.VideoID != "abc" {
		t.Fatalf("only UC123's broadcast should end, got %+v", events)
	}
	rec, _ := r.Get("zzz")
	if rec.State != StateLive {
		t.Fatalf("other channel's broadcast should stay live, got %s", rec.State)
	}
}

func TestMarkEndedOutOfBand(t *testing.T) {
	r := New()
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0)

	rec, ok := r.MarkEnded("abc")
	if !ok || rec.State != StateEnded {
		t.Fatalf("MarkEnded should transition the record, got %+v ok=%v", rec, ok)
	}
	if _, ok := r.MarkEnded("unknown"); ok {
		t.Fatal("unknown id should not transition")
	}
}

func TestRecordSampleUpdatesTimestamps(t *testing.T) {
	r := New()
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "upcoming")}, t0)
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0.Add(time.Minute))

	sched := t0.Add(-time.Hour)
	stats := fetcher.BroadcastStats{ConcurrentViewers: 10, ScheduledStart: &sched}

	sampledAt := t0.Add(2 * time.Minute)
	rec, ok := r.RecordSample("abc", stats, sampledAt)
	if !ok {
		t.Fatal("RecordSample should succeed for a live record")
	}
	if rec.LastSampledAt == nil || !rec.LastSampledAt.Equal(sampledAt) {
		t.Fatalf("lastSampledAt not stamped: %+v", rec.LastSampledAt)
	}
	if rec.ScheduledStart == nil || !rec.ScheduledStart.Equal(sched) {
		t.Fatal("scheduledStart should be backfilled from stats")
	}

	if _, ok := r.RecordSample("missing", stats, sampledAt); ok {
		t.Fatal("unknown id should not record a sample")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := New()
	r.Reconcile("UC123", []fetcher.BroadcastSummary{summary("abc", "live")}, t0)

	live := r.LiveBroadcasts()
	live[0].Title = "mutated"

	rec, _ := r.Get("abc")
	if rec.Title == "mutated" {
		t.Fatal("snapshot mutation leaked into the registry")
	}
}
