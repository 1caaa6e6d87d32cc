package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livewatcher/internal/config"
	"livewatcher/internal/fetcher"
	"livewatcher/internal/history"
	"livewatcher/internal/quota"
	"livewatcher/internal/registry"
	"livewatcher/internal/sink"
)

type fakeAPI struct {
	summaries map[string][]fetcher.BroadcastSummary
	stats     map[string]fetcher.BroadcastStats
	statsErr  map[string]error
	searches  int
	fetches   int
}

func (f *fakeAPI) SearchLiveBroadcasts(_ context.Context, channelID string) ([]fetcher.BroadcastSummary, error) {
	f.searches++
	return f.summaries[channelID], nil
}

// The real client issues two billed search requests per invocation.
func (f *fakeAPI) SearchCalls() int { return 2 }

func (f *fakeAPI) FetchBroadcastStats(_ context.Context, videoID string) (fetcher.BroadcastStats, error) {
	f.fetches++
	if err, ok := f.statsErr[videoID]; ok {
		return fetcher.BroadcastStats{}, err
	}
	stats, ok := f.stats[videoID]
	if !ok {
		return fetcher.BroadcastStats{}, fetcher.ErrNotFound
	}
	return stats, nil
}

type fakeRenderer struct {
	events    []registry.Event
	summaries int
}

func (f *fakeRenderer) Publish(ev registry.Event)                        { f.events = append(f.events, ev) }
func (f *fakeRenderer) RenderSummary(records []registry.BroadcastRecord) { f.summaries++ }

func (f *fakeRenderer) kinds() []registry.EventKind {
	out := make([]registry.EventKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

type captureSink struct {
	rows []sink.Row
}

func (c *captureSink) WriteRow(_ context.Context, row sink.Row) error {
	c.rows = append(c.rows, row)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Poller: config.PollerConfig{Channels: []string{"UC123"}},
		Quota:  config.QuotaConfig{DailyBudget: 10000, SearchCost: 100, StatsCost: 1},
	}
}

func newTracker(api *fakeAPI, renderer *fakeRenderer, csv sink.RowWriter) (*Tracker, *registry.Registry, *history.Buffer) {
	cfg := testConfig()
	reg := registry.New()
	hist := history.NewBuffer(12)
	gov := quota.NewGovernor(cfg.Quota.DailyBudget, zerolog.Nop())
	dispatcher := sink.NewDispatcher(csv, nil, zerolog.Nop())
	tr := New(cfg, gov, api, reg, hist, dispatcher, renderer, zerolog.Nop())
	return tr, reg, hist
}

func upcomingThenLive(status string) map[string][]fetcher.BroadcastSummary {
	return map[string][]fetcher.BroadcastSummary{
		"UC123": {{
			VideoID:     "abc",
			ChannelID:   "UC123",
			ChannelName: "Test Channel",
			Title:       "Launch Stream",
			Status:      status,
		}},
	}
}

func TestUpcomingToLiveScenario(t *testing.T) {
	api := &fakeAPI{summaries: upcomingThenLive("upcoming")}
	renderer := &fakeRenderer{}
	tr, reg, _ := newTracker(api, renderer, nil)

	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	if err := tr.DiscoverTick(context.Background(), t0); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	api.summaries = upcomingThenLive("live")
	if err := tr.DiscoverTick(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	rec, _ := reg.Get("abc")
	if rec.State != registry.StateLive {
		t.Fatalf("expected live state, got %s", rec.State)
	}
	if rec.ActualStart == nil {
		t.Fatal("actualStart should be set on the live transition")
	}

	wentLive := 0
	for _, kind := range renderer.kinds() {
		if kind == registry.EventWentLive {
			wentLive++
		}
	}
	if wentLive != 1 {
		t.Fatalf("WentLive 应恰好触发一次, got %d (%v)", wentLive, renderer.kinds())
	}
}

func TestSamplingBuildsHistorySeries(t *testing.T) {
	api := &fakeAPI{
		summaries: upcomingThenLive("live"),
		stats:     map[string]fetcher.BroadcastStats{"abc": {}},
	}
	renderer := &fakeRenderer{}
	csv := &captureSink{}
	tr, reg, hist := newTracker(api, renderer, csv)

	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	if err := tr.DiscoverTick(context.Background(), t0); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	for i, viewers := range []int64{100, 150, 140} {
		api.stats["abc"] = fetcher.BroadcastStats{ConcurrentViewers: viewers, LikeCount: 10, CommentCount: 2}
		if err := tr.SampleTick(context.Background(), t0.Add(time.Duration(i+1)*30*time.Second)); err != nil {
			t.Fatalf("sample tick %d failed: %v", i, err)
		}
	}

	samples := hist.Snapshot("abc")
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i, want := range []int64{100, 150, 140} {
		if samples[i].ConcurrentViewers != want {
			t.Fatalf("sample %d: expected %d viewers, got %d", i, want, samples[i].ConcurrentViewers)
		}
	}

	if len(csv.rows) != 3 {
		t.Fatalf("each sample should be dispatched, got %d rows", len(csv.rows))
	}
	if csv.rows[0].ChannelName != "Test Channel" || csv.rows[0].StreamStatus != "live" {
		t.Fatalf("row should carry record metadata: %+v", csv.rows[0])
	}

	rec, _ := reg.Get("abc")
	if rec.LastSampledAt == nil {
		t.Fatal("lastSampledAt should be stamped after sampling")
	}
	if renderer.summaries != 3 {
		t.Fatalf("summary should render once per sampling cycle, got %d", renderer.summaries)
	}
}

func TestStatsNotFoundEndsBroadcastImmediately(t *testing.T) {
	api := &fakeAPI{
		summaries: upcomingThenLive("live"),
		statsErr:  map[string]error{"abc": fetcher.ErrBroadcastEnded},
	}
	renderer := &fakeRenderer{}
	csv := &captureSink{}
	tr, reg, hist := newTracker(api, renderer, csv)

	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	if err := tr.DiscoverTick(context.Background(), t0); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	if err := tr.SampleTick(context.Background(), t0.Add(30*time.Second)); err != nil {
		t.Fatalf("sample tick failed: %v", err)
	}

	rec, _ := reg.Get("abc")
	if rec.State != registry.StateEnded {
		t.Fatalf("ended-server-side broadcast should transition immediately, got %s", rec.State)
	}
	if len(hist.Snapshot("abc")) != 0 || len(csv.rows) != 0 {
		t.Fatal("no sample may be recorded for an ended broadcast")
	}

	// The next cycle must not fetch stats for it again.
	fetchesBefore := api.fetches
	if err := tr.SampleTick(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("sample tick failed: %v", err)
	}
	if api.fetches != fetchesBefore {
		t.Fatal("ended broadcast must be excluded from subsequent sampling")
	}
}

func TestTransientStatsErrorSkipsCycleOnly(t *testing.T) {
	api := &fakeAPI{
		summaries: upcomingThenLive("live"),
		statsErr:  map[string]error{"abc": fmt.Errorf("connection reset")},
	}
	tr, reg, hist := newTracker(api, &fakeRenderer{}, nil)

	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	_ = tr.DiscoverTick(context.Background(), t0)
	_ = tr.SampleTick(context.Background(), t0.Add(30*time.Second))

	rec, _ := reg.Get("abc")
	if rec.State != registry.StateLive {
		t.Fatalf("transient error must not change lifecycle state, got %s", rec.State)
	}
	if len(hist.Snapshot("abc")) != 0 {
		t.Fatal("failed fetch must not produce a sample")
	}

	// Recovery on the next tick.
	delete(api.statsErr, "abc")
	api.stats = map[string]fetcher.BroadcastStats{"abc": {ConcurrentViewers: 55}}
	_ = tr.SampleTick(context.Background(), t0.Add(time.Minute))
	if len(hist.Snapshot("abc")) != 1 {
		t.Fatal("sampling should recover on the next cycle")
	}
}

func TestQuotaDenialSkipsDiscovery(t *testing.T) {
	api := &fakeAPI{summaries: upcomingThenLive("live")}
	cfg := testConfig()
	cfg.Quota.DailyBudget = 50 // below one search call
	gov := quota.NewGovernor(cfg.Quota.DailyBudget, zerolog.Nop())
	tr := New(cfg, gov, api, registry.New(), history.NewBuffer(12), nil, nil, zerolog.Nop())

	if err := tr.DiscoverTick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("quota denial must be soft: %v", err)
	}
	if api.searches != 0 {
		t.Fatal("denied reservation must prevent the api call")
	}
}

func TestDiscoveryChargesEverySearchRequest(t *testing.T) {
	api := &fakeAPI{summaries: upcomingThenLive("live")}
	cfg := testConfig()
	gov := quota.NewGovernor(cfg.Quota.DailyBudget, zerolog.Nop())
	tr := New(cfg, gov, api, registry.New(), history.NewBuffer(12), nil, nil, zerolog.Nop())

	if err := tr.DiscoverTick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	used, _ := gov.Usage()
	want := cfg.Quota.SearchCost * api.SearchCalls()
	if used != want {
		t.Fatalf("一次发现应计费 %d 单位, got %d", want, used)
	}
}

func TestUpcomingBroadcastsAreNotSampled(t *testing.T) {
	api := &fakeAPI{summaries: upcomingThenLive("upcoming")}
	tr, _, _ := newTracker(api, &fakeRenderer{}, nil)

	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	_ = tr.DiscoverTick(context.Background(), t0)
	_ = tr.SampleTick(context.Background(), t0.Add(30*time.Second))

	if api.fetches != 0 {
		t.Fatal("upcoming broadcasts must not be sampled")
	}
}
