package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	searchPath = "/search"
	videosPath = "/videos"

	defaultBaseURL    = "https://www.googleapis.com/youtube/v3"
	defaultMaxResults = 10
)

// YouTubeOptions parameterise the Data API v3 client.
type YouTubeOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	MaxResults int
}

// YouTube talks to the Data API v3 over plain HTTP.
type YouTube struct {
	opts    YouTubeOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYouTube constructs a Data API client.
func NewYouTube(opts YouTubeOptions, logger zerolog.Logger) *YouTube {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}

	return &YouTube{
		opts:    opts,
		logger:  logger.With().Str("component", "youtube_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// searchEventTypes lists the event types one discovery pass queries.
// The API cannot filter on both in a single search.list request, so
// each entry costs one billed search call.
var searchEventTypes = []string{StatusLive, StatusUpcoming}

// SearchCalls reports how many billed search.list requests a single
// SearchLiveBroadcasts invocation issues. Quota accounting multiplies
// the per-request cost by this.
func (y *YouTube) SearchCalls() int {
	return len(searchEventTypes)
}

// SearchLiveBroadcasts returns the broadcasts currently live or upcoming
// on the given channel. One search call is issued per entry in
// searchEventTypes and the results are merged by video id.
func (y *YouTube) SearchLiveBroadcasts(ctx context.Context, channelID string) ([]BroadcastSummary, error) {
	if y.opts.APIKey == "" {
		return nil, fmt.Errorf("youtube api key not configured")
	}
	if channelID == "" {
		return nil, ErrInvalidChannel
	}

	summaries := make([]BroadcastSummary, 0, 4)
	seen := make(map[string]struct{})

	for _, eventType := range searchEventTypes {
		page, err := y.searchByEventType(ctx, channelID, eventType)
		if err != nil {
			return nil, err
		}
		for _, s := range page {
			if _, dup := seen[s.VideoID]; dup {
				continue
			}
			seen[s.VideoID] = struct{}{}
			summaries = append(summaries, s)
		}
	}

	return summaries, nil
}

func (y *YouTube) searchByEventType(ctx context.Context, channelID, eventType string) ([]BroadcastSummary, error) {
	query := url.Values{}
	query.Set("part", "snippet")
	query.Set("channelId", channelID)
	query.Set("type", "video")
	query.Set("eventType", eventType)
	query.Set("maxResults", strconv.Itoa(y.opts.MaxResults))
	query.Set("key", y.opts.APIKey)

	var payload searchResponse
	if err := y.get(ctx, searchPath, query, &payload); err != nil {
		return nil, err
	}

	summaries := make([]BroadcastSummary, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.ID.VideoID == "" {
			continue
		}
		status := item.Snippet.LiveBroadcastContent
		if status != StatusLive && status != StatusUpcoming {
			// The search index can lag; trust only the two states we track.
			continue
		}
		summaries = append(summaries, BroadcastSummary{
			VideoID:     item.ID.VideoID,
			ChannelID:   channelID,
			ChannelName: item.Snippet.ChannelTitle,
			Title:       item.Snippet.Title,
			Status:      status,
		})
	}

	return summaries, nil
}

// FetchBroadcastStats retrieves liveStreamingDetails + statistics for a
// single video. A video that resolves but is no longer flagged live or
// upcoming yields ErrBroadcastEnded.
func (y *YouTube) FetchBroadcastStats(ctx context.Context, videoID string) (BroadcastStats, error) {
	if y.opts.APIKey == "" {
		return BroadcastStats{}, fmt.Errorf("youtube api key not configured")
	}

	query := url.Values{}
	query.Set("part", "snippet,liveStreamingDetails,statistics")
	query.Set("id", videoID)
	query.Set("key", y.opts.APIKey)

	var payload videosResponse
	if err := y.get(ctx, videosPath, query, &payload); err != nil {
		return BroadcastStats{}, err
	}

	if len(payload.Items) == 0 {
		return BroadcastStats{}, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}

	item := payload.Items[0]
	if item.Snippet.LiveBroadcastContent != StatusLive && item.Snippet.LiveBroadcastContent != StatusUpcoming {
		return BroadcastStats{}, fmt.Errorf("%w: %s", ErrBroadcastEnded, videoID)
	}

	stats := BroadcastStats{}

	var err error
	if stats.ConcurrentViewers, err = parseCount(item.LiveStreamingDetails.ConcurrentViewers); err != nil {
		return BroadcastStats{}, malformed("liveStreamingDetails.concurrentViewers")
	}
	if stats.LikeCount, err = parseCount(item.Statistics.LikeCount); err != nil {
		return BroadcastStats{}, malformed("statistics.likeCount")
	}
	if stats.CommentCount, err = parseCount(item.Statistics.CommentCount); err != nil {
		return BroadcastStats{}, malformed("statistics.commentCount")
	}

	if stats.ScheduledStart, err = parseTimestamp(item.LiveStreamingDetails.ScheduledStartTime); err != nil {
		return BroadcastStats{}, malformed("liveStreamingDetails.scheduledStartTime")
	}
	if stats.ActualStart, err = parseTimestamp(item.LiveStreamingDetails.ActualStartTime); err != nil {
		return BroadcastStats{}, malformed("liveStreamingDetails.actualStartTime")
	}

	return stats, nil
}

func (y *YouTube) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := y.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp.StatusCode, payloadBytes)
	}

	if err := json.Unmarshal(payloadBytes, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// parseCount reads the string-encoded counters the API uses. Absent
// fields count as zero (upcoming broadcasts have no viewers yet).
func parseCount(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseTimestamp(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	utc := ts.UTC()
	return &utc, nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			ChannelTitle         string `json:"channelTitle"`
			Title                string `json:"title"`
			LiveBroadcastContent string `json:"liveBroadcastContent"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			ChannelID            string `json:"channelId"`
			ChannelTitle         string `json:"channelTitle"`
			Title                string `json:"title"`
			LiveBroadcastContent string `json:"liveBroadcastContent"`
		} `json:"snippet"`
		Statistics struct {
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
		LiveStreamingDetails struct {
			ConcurrentViewers  string `json:"concurrentViewers"`
			ScheduledStartTime string `json:"scheduledStartTime"`
			ActualStartTime    string `json:"actualStartTime"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func classifyHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	reason := ""
	message := ""
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		message = apiErr.Error.Message
		if len(apiErr.Error.Errors) > 0 {
			reason = apiErr.Error.Errors[0].Reason
		}
	}

	switch reason {
	case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case "invalidChannelId", "channelNotFound":
		return fmt.Errorf("%w: %s", ErrInvalidChannel, message)
	case "videoNotFound":
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	}

	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	}

	if message != "" {
		return fmt.Errorf("youtube api error (%d): %s", status, message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("youtube api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("youtube api error (%d)", status)
}

var _ BroadcastAPI = (*YouTube)(nil)
