package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors classifying upstream API failures. Callers branch on
// these with errors.Is; everything else is treated as transient and
// retried on the next scheduled cycle only.
var (
	// ErrRateLimited indicates the API refused the call for quota or
	// rate reasons.
	ErrRateLimited = errors.New("fetcher: rate limited by upstream api")
	// ErrNotFound indicates the requested video no longer resolves.
	ErrNotFound = errors.New("fetcher: video not found")
	// ErrBroadcastEnded indicates the video resolves but is no longer
	// live or upcoming.
	ErrBroadcastEnded = errors.New("fetcher: broadcast has ended")
	// ErrInvalidChannel indicates the channel id was rejected.
	ErrInvalidChannel = errors.New("fetcher: invalid channel id")
	// ErrMalformedResponse indicates the response body violated the
	// expected schema.
	ErrMalformedResponse = errors.New("fetcher: malformed api response")
)

// Broadcast status values as reported by the upstream API.
const (
	StatusLive     = "live"
	StatusUpcoming = "upcoming"
)

// BroadcastSummary describes one live or upcoming broadcast found on a
// monitored channel.
type BroadcastSummary struct {
	VideoID        string
	ChannelID      string
	ChannelName    string
	Title          string
	Status         string // StatusLive or StatusUpcoming
	ScheduledStart *time.Time
}

// BroadcastStats carries point-in-time engagement counters for one
// broadcast, plus the schedule timestamps the stats endpoint reports.
type BroadcastStats struct {
	ConcurrentViewers int64
	LikeCount         int64
	CommentCount      int64
	ScheduledStart    *time.Time
	ActualStart       *time.Time
}

// BroadcastSearcher discovers live/upcoming broadcasts on a channel.
// SearchCalls reports how many billed upstream requests one
// SearchLiveBroadcasts invocation issues, so quota reservations can
// match actual spend.
type BroadcastSearcher interface {
	SearchLiveBroadcasts(ctx context.Context, channelID string) ([]BroadcastSummary, error)
	SearchCalls() int
}

// StatsFetcher retrieves current stats for a single broadcast.
type StatsFetcher interface {
	FetchBroadcastStats(ctx context.Context, videoID string) (BroadcastStats, error)
}

// BroadcastAPI bundles both halves of the upstream surface.
type BroadcastAPI interface {
	BroadcastSearcher
	StatsFetcher
}

func malformed(field string) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, field)
}
