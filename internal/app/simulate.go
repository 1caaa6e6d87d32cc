package app

import (
	"context"
	"os"
	"time"

	"livewatcher/internal/fetcher"
	"livewatcher/internal/history"
	"livewatcher/internal/quota"
	"livewatcher/internal/registry"
	"livewatcher/internal/render"
	"livewatcher/internal/service"
	"livewatcher/internal/sink"
)

// Simulate 使用内置的假直播数据跑一轮完整的发现与采样流程，
// 不消耗任何真实 API 配额，也不写入任何 sink。
func (a *App) Simulate(ctx context.Context) error {
	channelID := "UC_SIMULATED"
	cfg := *a.Config
	cfg.Poller.Channels = []string{channelID}

	api := &cannedAPI{
		viewers: []int64{120, 480, 1350, 1290, 1410},
	}

	reg := registry.New()
	hist := history.NewBuffer(cfg.History.MaxPoints)
	gov := quota.NewGovernor(cfg.Quota.DailyBudget, a.Logger)
	console := render.NewConsole(os.Stdout, hist, a.Logger)

	consoleCtx, stopConsole := context.WithCancel(ctx)
	defer stopConsole()
	go console.Run(consoleCtx)

	tracker := service.New(&cfg, gov, api, reg, hist, sink.NewDispatcher(nil, nil, a.Logger), console, a.Logger)

	now := time.Now().UTC()

	// First discovery sees the broadcast upcoming, the second sees it live.
	if err := tracker.DiscoverTick(ctx, now); err != nil {
		return err
	}
	api.live = true
	if err := tracker.DiscoverTick(ctx, now.Add(time.Minute)); err != nil {
		return err
	}

	for i := range api.viewers {
		api.step = i
		if err := tracker.SampleTick(ctx, now.Add(time.Minute+time.Duration(i+1)*30*time.Second)); err != nil {
			return err
		}
	}

	// Let the console drain its event buffer before returning.
	time.Sleep(100 * time.Millisecond)
	return nil
}

type cannedAPI struct {
	live    bool
	step    int
	viewers []int64
}

func (c *cannedAPI) SearchLiveBroadcasts(_ context.Context, channelID string) ([]fetcher.BroadcastSummary, error) {
	status := fetcher.StatusUpcoming
	if c.live {
		status = fetcher.StatusLive
	}
	return []fetcher.BroadcastSummary{{
		VideoID:     "sim-video-1",
		ChannelID:   channelID,
		ChannelName: "Simulated Channel",
		Title:       "Simulated Launch Stream",
		Status:      status,
	}}, nil
}

func (c *cannedAPI) SearchCalls() int { return 1 }

func (c *cannedAPI) FetchBroadcastStats(context.Context, string) (fetcher.BroadcastStats, error) {
	viewers := c.viewers[c.step]
	return fetcher.BroadcastStats{
		ConcurrentViewers: viewers,
		LikeCount:         viewers / 4,
		CommentCount:      viewers / 20,
	}, nil
}

var _ fetcher.BroadcastAPI = (*cannedAPI)(nil)
