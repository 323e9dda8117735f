package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"botwatch/internal/models"
)

// 14 days of one-minute samples
const MaxHistorySamples = 14 * 24 * 60

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) InsertAlert(ctx context.Context, a models.Alert) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO alerts (id,type,current,threshold,status,ts) VALUES (?,?,?,?,?,?)`,
		a.ID, string(a.Type), a.Data.Current, a.Data.Threshold, a.Status, a.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

func (r *Repository) RecentAlerts(ctx context.Context, since time.Time, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,type,current,threshold,status,ts FROM alerts WHERE ts >= ? ORDER BY ts DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Alert, 0, 16)
	for rows.Next() {
		var a models.Alert
		var typ string
		if err := rows.Scan(&a.ID, &typ, &a.Data.Current, &a.Data.Threshold, &a.Status, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Type = models.AlertType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) InsertHistorySample(ctx context.Context, s models.HistorySample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode history sample: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO history_samples
		(ts,message_count,error_count,active_users,memory_used_bytes,cpu_pct,snapshot_json)
		VALUES (?,?,?,?,?,?,?)`,
		s.Timestamp.UTC(), s.Metrics.MessageCount, s.Metrics.ErrorCount, s.Metrics.ActiveUsers,
		int64(s.Resources.MemoryUsed), s.Resources.CPUPercent, string(b))
	if err != nil {
		return fmt.Errorf("insert history sample: %w", err)
	}
	return nil
}

func (r *Repository) HistorySamplesBetween(ctx context.Context, from, to time.Time, limit int) ([]models.HistorySample, error) {
	if limit <= 0 || limit > MaxHistorySamples {
		limit = MaxHistorySamples
	}
	rows, err := r.db.QueryContext(ctx, `SELECT snapshot_json FROM history_samples WHERE ts >= ? AND ts <= ? ORDER BY ts ASC LIMIT ?`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.HistorySample, 0, 64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var s models.HistorySample
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode history sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) InsertEvent(ctx context.Context, e models.MonitoringEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO monitoring_events (type,reason,ts) VALUES (?,?,?)`, e.Type, e.Reason, e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert monitoring event: %w", err)
	}
	return nil
}

func (r *Repository) EventsBetween(ctx context.Context, from, to time.Time) ([]models.MonitoringEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type,reason,ts FROM monitoring_events WHERE ts >= ? AND ts <= ? ORDER BY ts ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MonitoringEvent
	for rows.Next() {
		var e models.MonitoringEvent
		if err := rows.Scan(&e.Type, &e.Reason, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	queries := []string{
		`DELETE FROM history_samples WHERE ts < ?`,
		`DELETE FROM alerts WHERE ts < ?`,
		`DELETE FROM monitoring_events WHERE ts < ?`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
			return err
		}
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return nil
}
