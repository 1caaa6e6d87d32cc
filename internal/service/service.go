package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"livewatcher/internal/config"
	"livewatcher/internal/fetcher"
	"livewatcher/internal/history"
	"livewatcher/internal/quota"
	"livewatcher/internal/registry"
	"livewatcher/internal/render"
	"livewatcher/internal/sink"
)

// Tracker orchestrates discovery, sampling, persistence, and rendering.
// Its two tick methods are driven by independent scheduler loops; all
// shared state lives behind the registry and quota governor.
type Tracker struct {
	channels   []string
	searchCost int
	statsCost  int

	quota    *quota.Governor
	api      fetcher.BroadcastAPI
	registry *registry.Registry
	history  *history.Buffer
	sinks    *sink.Dispatcher
	renderer render.Renderer
	logger   zerolog.Logger
}

// New constructs the tracking service.
func New(cfg *config.Config, gov *quota.Governor, api fetcher.BroadcastAPI, reg *registry.Registry, hist *history.Buffer, sinks *sink.Dispatcher, renderer render.Renderer, logger zerolog.Logger) *Tracker {
	return &Tracker{
		channels: cfg.Poller.Channels,
		// search_cost is billed per search.list request; one discovery
		// of a channel issues api.SearchCalls() of them.
		searchCost: cfg.Quota.SearchCost * api.SearchCalls(),
		statsCost:  cfg.Quota.StatsCost,
		quota:      gov,
		api:        api,
		registry:   reg,
		history:    hist,
		sinks:      sinks,
		renderer:   renderer,
		logger:     logger.With().Str("component", "tracker").Logger(),
	}
}

// DiscoverTick 执行一次全频道的直播发现与状态对账。
// Per-channel failures are soft: a denied quota reservation or a
// transient API error skips that channel until the next cycle.
func (t *Tracker) DiscoverTick(ctx context.Context, now time.Time) error {
	for _, channelID := range t.channels {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !t.quota.Reserve(t.searchCost) {
			t.logger.Warn().Str("channel_id", channelID).Msg("quota exhausted, skipping discovery for channel")
			continue
		}

		summaries, err := t.api.SearchLiveBroadcasts(ctx, channelID)
		if err != nil {
			t.logDiscoveryError(channelID, err)
			continue
		}

		events := t.registry.Reconcile(channelID, summaries, now)
		for _, ev := range events {
			t.publish(ev)
			switch ev.Kind {
			case registry.EventNewStream:
				t.logger.Info().
					Str("video_id", ev.Record.VideoID).
					Str("channel", ev.Record.ChannelName).
					Str("state", string(ev.Record.State)).
					Msg("new stream detected")
			case registry.EventWentLive:
				t.logger.Info().
					Str("video_id", ev.Record.VideoID).
					Str("channel", ev.Record.ChannelName).
					Msg("stream went live")
			case registry.EventEnded:
				t.logger.Info().
					Str("video_id", ev.Record.VideoID).
					Str("channel", ev.Record.ChannelName).
					Msg("stream ended")
			}
		}
	}

	t.logger.Debug().Int("tracked_broadcasts", t.registry.Len()).Msg("discovery cycle complete")
	return nil
}

// SampleTick fetches stats for every live broadcast and fans the
// resulting samples out to history, sinks, and the renderer. The live
// set is snapshotted up front so no registry lock is held across
// network calls.
func (t *Tracker) SampleTick(ctx context.Context, now time.Time) error {
	live := t.registry.LiveBroadcasts()

	for _, rec := range live {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.sampleOne(ctx, rec, now)
	}

	if t.renderer != nil {
		t.renderer.RenderSummary(t.registry.ActiveBroadcasts())
	}

	return nil
}

func (t *Tracker) sampleOne(ctx context.Context, rec registry.BroadcastRecord, now time.Time) {
	if !t.quota.Reserve(t.statsCost) {
		t.logger.Warn().Str("video_id", rec.VideoID).Msg("quota exhausted, skipping sample")
		return
	}

	stats, err := t.api.FetchBroadcastStats(ctx, rec.VideoID)
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) || errors.Is(err, fetcher.ErrBroadcastEnded) {
			// Ended server-side before discovery noticed; transition now
			// and discard the sample rather than persist garbage.
			if ended, ok := t.registry.MarkEnded(rec.VideoID); ok {
				t.logger.Info().Str("video_id", rec.VideoID).Msg("broadcast ended server-side during sampling")
				t.publish(registry.Event{Kind: registry.EventEnded, Record: ended, At: now})
			}
			return
		}
		t.logger.Warn().Err(err).Str("video_id", rec.VideoID).Msg("stats fetch failed, will retry next cycle")
		return
	}

	updated, ok := t.registry.RecordSample(rec.VideoID, stats, now)
	if !ok {
		// Ended concurrently between snapshot and fetch.
		return
	}

	sample := registry.Sample{
		VideoID:           updated.VideoID,
		CollectedAt:       now,
		ConcurrentViewers: stats.ConcurrentViewers,
		LikeCount:         stats.LikeCount,
		CommentCount:      stats.CommentCount,
		State:             updated.State,
		ScheduledStart:    updated.ScheduledStart,
		ActualStart:       updated.ActualStart,
	}

	t.history.Append(sample)
	if t.sinks != nil {
		t.sinks.Dispatch(ctx, sink.NewRow(updated, sample))
	}
	t.publish(registry.Event{Kind: registry.EventSampled, Record: updated, Sample: &sample, At: now})

	t.logger.Debug().
		Str("video_id", sample.VideoID).
		Int64("viewers", sample.ConcurrentViewers).
		Int64("likes", sample.LikeCount).
		Int64("comments", sample.CommentCount).
		Msg("sample collected")
}

func (t *Tracker) publish(ev registry.Event) {
	if t.renderer != nil {
		t.renderer.Publish(ev)
	}
}

func (t *Tracker) logDiscoveryError(channelID string, err error) {
	switch {
	case errors.Is(err, fetcher.ErrRateLimited):
		t.logger.Warn().Str("channel_id", channelID).Msg("discovery rate limited, retrying next cycle")
	case errors.Is(err, fetcher.ErrInvalidChannel):
		t.logger.Error().Str("channel_id", channelID).Msg("channel id rejected by the api")
	default:
		t.logger.Warn().Err(err).Str("channel_id", channelID).Msg("discovery failed, retrying next cycle")
	}
}
