package sink

import (
	"context"
	"time"

	"livewatcher/internal/registry"
)

// Row is one persisted analytics observation, shaped exactly like the
// durable column set shared by both sinks.
type Row struct {
	CollectedAt       time.Time
	ChannelID         string
	ChannelName       string
	VideoID           string
	VideoTitle        string
	ConcurrentViewers int64
	LikeCount         int64
	CommentCount      int64
	StreamStatus      string
	ScheduledStart    *time.Time
	ActualStart       *time.Time
}

// NewRow flattens a registry record and its sample into a sink row.
func NewRow(rec registry.BroadcastRecord, sample registry.Sample) Row {
	return Row{
		CollectedAt:       sample.CollectedAt,
		ChannelID:         rec.ChannelID,
		ChannelName:       rec.ChannelName,
		VideoID:           sample.VideoID,
		VideoTitle:        rec.Title,
		ConcurrentViewers: sample.ConcurrentViewers,
		LikeCount:         sample.LikeCount,
		CommentCount:      sample.CommentCount,
		StreamStatus:      string(sample.State),
		ScheduledStart:    sample.ScheduledStart,
		ActualStart:       sample.ActualStart,
	}
}

// RowWriter is the contract both sinks implement; writes are
// append-only and at-least-once.
type RowWriter interface {
	WriteRow(ctx context.Context, row Row) error
}
