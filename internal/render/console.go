package render

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog"

	"livewatcher/internal/history"
	"livewatcher/internal/registry"
)

// Renderer is the operator-view surface the tracker publishes to.
// Implementations must never block the polling loops.
type Renderer interface {
	Publish(ev registry.Event)
	RenderSummary(records []registry.BroadcastRecord)
}

// Console renders lifecycle events and a periodic summary table of the
// tracked broadcasts to a terminal.
type Console struct {
	// mu serialises writes to out: printEvent runs on the consumer
	// goroutine while RenderSummary runs on the sampler's.
	mu     sync.Mutex
	out    io.Writer
	hist   *history.Buffer
	events chan registry.Event
	logger zerolog.Logger
}

// NewConsole constructs the console renderer. The event buffer is
// bounded; Publish drops when the consumer falls behind.
func NewConsole(out io.Writer, hist *history.Buffer, logger zerolog.Logger) *Console {
	return &Console{
		out:    out,
		hist:   hist,
		events: make(chan registry.Event, 64),
		logger: logger.With().Str("component", "console").Logger(),
	}
}

// Publish hands an event to the renderer without blocking; rendering is
// best effort and a dropped event loses nothing durable.
func (c *Console) Publish(ev registry.Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug().Str("kind", string(ev.Kind)).Msg("event buffer full, dropping")
	}
}

// Run consumes published events until ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.printEvent(ev)
		}
	}
}

func (c *Console) printEvent(ev registry.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case registry.EventNewStream:
		fmt.Fprintf(c.out, "\n◆ NEW STREAM  %s — %s [%s]\n",
			ev.Record.ChannelName, ev.Record.Title, ev.Record.State)
	case registry.EventWentLive:
		fmt.Fprintf(c.out, "\n● WENT LIVE   %s — %s\n",
			ev.Record.ChannelName, ev.Record.Title)
	case registry.EventEnded:
		fmt.Fprintf(c.out, "\n○ ENDED       %s — %s\n",
			ev.Record.ChannelName, ev.Record.Title)
	case registry.EventSampled:
		// Sampled events feed the summary table instead of the scroll.
	}
}

// RenderSummary prints the active-broadcast table with a viewer trend
// column derived from the history buffer.
func (c *Console) RenderSummary(records []registry.BroadcastRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(records) == 0 {
		fmt.Fprintf(c.out, "\n%s  no live or upcoming streams\n", time.Now().UTC().Format("15:04:05"))
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Live Streams — " + time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	tw.AppendHeader(table.Row{"Channel", "Title", "Status", "Viewers", "Likes", "Comments", "Trend", "Started"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 40},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	for _, rec := range records {
		samples := c.hist.Snapshot(rec.VideoID)
		var viewers, likes, comments int64
		if len(samples) > 0 {
			latest := samples[len(samples)-1]
			viewers = latest.ConcurrentViewers
			likes = latest.LikeCount
			comments = latest.CommentCount
		}

		tw.AppendRow(table.Row{
			truncate(rec.ChannelName, 25),
			truncate(rec.Title, 40),
			statusLabel(rec.State),
			formatCount(viewers),
			formatCount(likes),
			formatCount(comments),
			sparkline(samples),
			startedLabel(rec),
		})
	}

	fmt.Fprintln(c.out)
	tw.Render()
}

func statusLabel(state registry.LifecycleState) string {
	if state == registry.StateLive {
		return "LIVE"
	}
	return "soon"
}

func startedLabel(rec registry.BroadcastRecord) string {
	if rec.ActualStart != nil {
		return rec.ActualStart.UTC().Format("15:04")
	}
	if rec.ScheduledStart != nil {
		return rec.ScheduledStart.UTC().Format("01-02 15:04")
	}
	return "—"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func formatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline compresses a viewer series into a fixed-width braille-like
// strip, scaled to the series' own min/max.
func sparkline(samples []registry.Sample) string {
	if len(samples) < 2 {
		return ""
	}

	lo, hi := samples[0].ConcurrentViewers, samples[0].ConcurrentViewers
	for _, s := range samples {
		if s.ConcurrentViewers < lo {
			lo = s.ConcurrentViewers
		}
		if s.ConcurrentViewers > hi {
			hi = s.ConcurrentViewers
		}
	}

	span := hi - lo
	var b strings.Builder
	for _, s := range samples {
		idx := 0
		if span > 0 {
			idx = int((s.ConcurrentViewers - lo) * int64(len(sparkLevels)-1) / span)
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}
