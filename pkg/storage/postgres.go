package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS outages (
	id           TEXT PRIMARY KEY,
	date         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	area         TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	first_seen   TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notified_statuses (
	outage_id TEXT NOT NULL REFERENCES outages(id) ON DELETE CASCADE,
	status    TEXT NOT NULL,
	PRIMARY KEY (outage_id, status)
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Postgres implements Backend on a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the schema if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Read(ctx context.Context) (*model.Snapshot, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM snapshot_meta`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot meta: %w", err)
	}
	meta := make(map[string]string)
	var k, v string
	_, err = pgx.ForEachRow(rows, []any{&k, &v}, func() error {
		meta[k] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan snapshot meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrNotExist
	}

	snap := &model.Snapshot{Outages: make(map[string]*model.StoredOutage)}
	if err := applyMeta(snap, meta); err != nil {
		return nil, err
	}

	rows, err = p.pool.Query(ctx,
		`SELECT id, date, status, title, area, url, first_seen, last_updated FROM outages`)
	if err != nil {
		return nil, fmt.Errorf("query outages: %w", err)
	}
	var o model.StoredOutage
	_, err = pgx.ForEachRow(rows,
		[]any{&o.ID, &o.Date, &o.Status, &o.Title, &o.Area, &o.URL, &o.FirstSeen, &o.LastUpdated},
		func() error {
			entry := o
			entry.FirstSeen = entry.FirstSeen.UTC()
			entry.LastUpdated = entry.LastUpdated.UTC()
			entry.NotifiedStatuses = model.NewStatusSet()
			snap.Outages[entry.ID] = &entry
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("scan outages: %w", err)
	}

	rows, err = p.pool.Query(ctx, `SELECT outage_id, status FROM notified_statuses`)
	if err != nil {
		return nil, fmt.Errorf("query notified statuses: %w", err)
	}
	var id, status string
	_, err = pgx.ForEachRow(rows, []any{&id, &status}, func() error {
		if entry, ok := snap.Outages[id]; ok {
			entry.NotifiedStatuses.Add(status)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan notified statuses: %w", err)
	}

	return snap, nil
}

// Write replaces every stored row inside a single transaction.
func (p *Postgres) Write(ctx context.Context, snap *model.Snapshot) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM notified_statuses`)
	batch.Queue(`DELETE FROM outages`)
	batch.Queue(`DELETE FROM snapshot_meta`)
	for k, v := range metaRows(snap) {
		batch.Queue(`INSERT INTO snapshot_meta (key, value) VALUES ($1, $2)`, k, v)
	}
	for _, o := range snap.Outages {
		batch.Queue(
			`INSERT INTO outages (id, date, status, title, area, url, first_seen, last_updated)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, o.Date, o.Status, o.Title, o.Area, o.URL, o.FirstSeen, o.LastUpdated,
		)
		for status := range o.NotifiedStatuses {
			batch.Queue(`INSERT INTO notified_statuses (outage_id, status) VALUES ($1, $2)`, o.ID, status)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write state rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
