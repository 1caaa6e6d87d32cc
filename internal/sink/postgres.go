package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livewatcher/internal/config"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("sink: pool not configured")

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS livestream_analytics (
        id                 BIGSERIAL PRIMARY KEY,
        collected_at       TIMESTAMPTZ NOT NULL,
        channel_id         TEXT NOT NULL,
        channel_name       TEXT,
        video_id           TEXT NOT NULL,
        video_title        TEXT,
        concurrent_viewers BIGINT,
        like_count         BIGINT,
        comment_count      BIGINT,
        stream_status      TEXT,
        scheduled_start    TIMESTAMPTZ,
        actual_start       TIMESTAMPTZ
    );`

	createVideoIndexSQL = `CREATE INDEX IF NOT EXISTS idx_livestream_analytics_video_id
        ON livestream_analytics (video_id);`

	createCollectedIndexSQL = `CREATE INDEX IF NOT EXISTS idx_livestream_analytics_collected_at
        ON livestream_analytics (collected_at);`

	insertRowSQL = `INSERT INTO livestream_analytics (
        collected_at,
        channel_id,
        channel_name,
        video_id,
        video_title,
        concurrent_viewers,
        like_count,
        comment_count,
        stream_status,
        scheduled_start,
        actual_start
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	listRecentRowsSQL = `SELECT
        collected_at,
        channel_id,
        channel_name,
        video_id,
        video_title,
        concurrent_viewers,
        like_count,
        comment_count,
        stream_status,
        scheduled_start,
        actual_start
    FROM livestream_analytics
    ORDER BY collected_at DESC
    LIMIT $1;`

	listVideoRowsSQL = `SELECT
        collected_at,
        channel_id,
        channel_name,
        video_id,
        video_title,
        concurrent_viewers,
        like_count,
        comment_count,
        stream_status,
        scheduled_start,
        actual_start
    FROM livestream_analytics
    WHERE video_id = $1
      AND collected_at >= $2
      AND collected_at < $3
    ORDER BY collected_at;`

	countRowsSQL = `SELECT COUNT(*) FROM livestream_analytics;`
)

// AnalyticsReader defines the query operations the CLI commands use.
type AnalyticsReader interface {
	ListRecentRows(ctx context.Context, limit int) ([]Row, error)
	ListRowsForVideo(ctx context.Context, videoID string, from, to time.Time) ([]Row, error)
	CountRows(ctx context.Context) (int64, error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Store is the relational sink backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the analytics table and its indexes idempotently.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createSchemaSQL, createVideoIndexSQL, createCollectedIndexSQL} {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// WriteRow appends one observation. Rows are never updated or deleted;
// a replayed (video_id, collected_at) pair simply lands twice.
func (s *Store) WriteRow(ctx context.Context, row Row) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertRowSQL,
		row.CollectedAt,
		row.ChannelID,
		row.ChannelName,
		row.VideoID,
		row.VideoTitle,
		row.ConcurrentViewers,
		row.LikeCount,
		row.CommentCount,
		row.StreamStatus,
		optionalTime(row.ScheduledStart),
		optionalTime(row.ActualStart),
	)
	if execErr != nil {
		return fmt.Errorf("insert analytics row: %w", execErr)
	}
	return nil
}

// ListRecentRows lists the most recent observations, newest first.
func (s *Store) ListRecentRows(ctx context.Context, limit int) ([]Row, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRowsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent rows: %w", queryErr)
	}
	defer rows.Close()

	return scanRows(rows, limit)
}

// ListRowsForVideo lists one video's observations within a time window
// in chronological order.
func (s *Store) ListRowsForVideo(ctx context.Context, videoID string, from, to time.Time) ([]Row, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listVideoRowsSQL, videoID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list video rows: %w", queryErr)
	}
	defer rows.Close()

	return scanRows(rows, 0)
}

// CountRows counts stored observations.
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRowsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count rows: %w", scanErr)
	}
	return count, nil
}

func scanRows(rows pgx.Rows, sizeHint int) ([]Row, error) {
	out := make([]Row, 0, sizeHint)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanRow(rows pgx.Rows) (Row, error) {
	var (
		row            Row
		channelName    sql.NullString
		videoTitle     sql.NullString
		viewers        sql.NullInt64
		likes          sql.NullInt64
		comments       sql.NullInt64
		status         sql.NullString
		scheduledStart sql.NullTime
		actualStart    sql.NullTime
	)

	if err := rows.Scan(
		&row.CollectedAt,
		&row.ChannelID,
		&channelName,
		&row.VideoID,
		&videoTitle,
		&viewers,
		&likes,
		&comments,
		&status,
		&scheduledStart,
		&actualStart,
	); err != nil {
		return Row{}, err
	}

	row.ChannelName = channelName.String
	row.VideoTitle = videoTitle.String
	row.ConcurrentViewers = viewers.Int64
	row.LikeCount = likes.Int64
	row.CommentCount = comments.Int64
	row.StreamStatus = status.String
	if scheduledStart.Valid {
		ts := scheduledStart.Time
		row.ScheduledStart = &ts
	}
	if actualStart.Valid {
		ts := actualStart.Time
		row.ActualStart = &ts
	}

	return row, nil
}

func optionalTime(ts *time.Time) interface{} {
	if ts == nil {
		return nil
	}
	return *ts
}

var (
	_ RowWriter       = (*Store)(nil)
	_ AnalyticsReader = (*Store)(nil)
)
