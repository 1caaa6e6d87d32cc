package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// csvHeader fixes the tabular sink's column order.
var csvHeader = []string{
	"collected_at", "channel_id", "channel_name", "video_id", "video_title",
	"concurrent_viewers", "like_count", "comment_count", "stream_status",
	"scheduled_start", "actual_start",
}

// CSVSink appends rows to a local file, writing the header once when
// the file is first created.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// NewCSVSink constructs the tabular sink.
func NewCSVSink(path string, logger zerolog.Logger) *CSVSink {
	return &CSVSink{
		path:   path,
		logger: logger.With().Str("component", "csv_sink").Logger(),
	}
}

// WriteRow appends one row, creating the file and parent directory on
// first use.
func (s *CSVSink) WriteRow(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create csv directory: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv sink: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv sink: %w", err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	if err := writer.Write(csvRecord(row)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

func csvRecord(row Row) []string {
	return []string{
		row.CollectedAt.UTC().Format(time.RFC3339),
		row.ChannelID,
		row.ChannelName,
		row.VideoID,
		row.VideoTitle,
		strconv.FormatInt(row.ConcurrentViewers, 10),
		strconv.FormatInt(row.LikeCount, 10),
		strconv.FormatInt(row.CommentCount, 10),
		row.StreamStatus,
		formatOptionalTime(row.ScheduledStart),
		formatOptionalTime(row.ActualStart),
	}
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

var _ RowWriter = (*CSVSink)(nil)
