package render

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livewatcher/internal/history"
	"livewatcher/internal/registry"
)

func TestPublishNeverBlocks(t *testing.T) {
	c := NewConsole(&strings.Builder{}, history.NewBuffer(12), zerolog.Nop())

	// No consumer running; publishing past the buffer must not hang.
	for i := 0; i < 200; i++ {
		c.Publish(registry.Event{Kind: registry.EventSampled})
	}
}

func TestRenderSummaryShowsLatestMetrics(t *testing.T) {
	hist := history.NewBuffer(12)
	out := &strings.Builder{}
	c := NewConsole(out, hist, zerolog.Nop())

	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	for i, viewers := range []int64{100, 150, 140} {
		hist.Append(registry.Sample{
			VideoID:           "abc",
			CollectedAt:       now.Add(time.Duration(i) * 30 * time.Second),
			ConcurrentViewers: viewers,
			LikeCount:         int64(10 * i),
			State:             registry.StateLive,
		})
	}

	c.RenderSummary([]registry.BroadcastRecord{{
		VideoID:     "abc",
		ChannelID:   "UC123",
		ChannelName: "Test Channel",
		Title:       "Launch Stream",
		State:       registry.StateLive,
		ActualStart: &now,
	}})

	rendered := out.String()
	if !strings.Contains(rendered, "Test Channel") {
		t.Fatalf("channel name missing from summary:\n%s", rendered)
	}
	if !strings.Contains(rendered, "140") {
		t.Fatalf("latest viewer count missing from summary:\n%s", rendered)
	}
	if !strings.Contains(rendered, "LIVE") {
		t.Fatalf("status label missing from summary:\n%s", rendered)
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	out := &strings.Builder{}
	c := NewConsole(out, history.NewBuffer(12), zerolog.Nop())

	c.RenderSummary(nil)
	if !strings.Contains(out.String(), "no live or upcoming streams") {
		t.Fatalf("empty summary message missing:\n%s", out.String())
	}
}

func TestConcurrentEventsAndSummariesDoNotInterleave(t *testing.T) {
	out := &strings.Builder{}
	c := NewConsole(out, history.NewBuffer(12), zerolog.Nop())

	ev := registry.Event{
		Kind:   registry.EventEnded,
		Record: registry.BroadcastRecord{ChannelName: "Test Channel", Title: "Launch Stream"},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.printEvent(ev)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.RenderSummary(nil)
		}
	}()
	wg.Wait()

	for _, line := range strings.Split(out.String(), "\n") {
		if line == "" {
			continue
		}
		ended := strings.HasPrefix(line, "○ ENDED") && strings.HasSuffix(line, "Launch Stream")
		empty := strings.HasSuffix(line, "no live or upcoming streams")
		if !ended && !empty {
			t.Fatalf("interleaved output line: %q", line)
		}
	}
}

func TestSparkline(t *testing.T) {
	samples := []registry.Sample{
		{ConcurrentViewers: 0},
		{ConcurrentViewers: 50},
		{ConcurrentViewers: 100},
	}
	line := sparkline(samples)
	if len([]rune(line)) != 3 {
		t.Fatalf("sparkline width should match sample count, got %q", line)
	}
	runes := []rune(line)
	if runes[0] != sparkLevels[0] || runes[2] != sparkLevels[len(sparkLevels)-1] {
		t.Fatalf("sparkline should span min to max, got %q", line)
	}

	if sparkline(samples[:1]) != "" {
		t.Fatal("单个样本不应绘制趋势线")
	}
}

func TestFormatCount(t *testing.T) {
	cases := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
	}
	for in, want := range cases {
		if got := formatCount(in); got != want {
			t.Fatalf("formatCount(%d) = %q, want %q", in, got, want)
		}
	}
}
