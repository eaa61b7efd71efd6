package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements Backend using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Read(ctx context.Context) (*model.Snapshot, error) {
	meta, err := s.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, ErrNotExist
	}

	snap := &model.Snapshot{Outages: make(map[string]*model.StoredOutage)}
	if err := applyMeta(snap, meta); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, status, title, area, url, first_seen, last_updated FROM outages`)
	if err != nil {
		return nil, fmt.Errorf("query outages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o model.StoredOutage
		var firstSeen, lastUpdated string
		if err := rows.Scan(&o.ID, &o.Date, &o.Status, &o.Title, &o.Area, &o.URL,
			&firstSeen, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan outage row: %w", err)
		}
		if o.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, fmt.Errorf("parse first_seen of %s: %w", o.ID, err)
		}
		if o.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, fmt.Errorf("parse last_updated of %s: %w", o.ID, err)
		}
		o.NotifiedStatuses = model.NewStatusSet()
		snap.Outages[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outages: %w", err)
	}

	if err := s.readNotified(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLite) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM snapshot_meta`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan snapshot meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *SQLite) readNotified(ctx context.Context, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT outage_id, status FROM notified_statuses`)
	if err != nil {
		return fmt.Errorf("query notified statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return fmt.Errorf("scan notified status: %w", err)
		}
		if o, ok := snap.Outages[id]; ok {
			o.NotifiedStatuses.Add(status)
		}
	}
	return rows.Err()
}

// Write replaces every stored row inside a single transaction.
func (s *SQLite) Write(ctx context.Context, snap *model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM notified_statuses`,
		`DELETE FROM outages`,
		`DELETE FROM snapshot_meta`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
	}

	for k, v := range metaRows(snap) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert snapshot meta %s: %w", k, err)
		}
	}

	for _, o := range snap.Outages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outages (id, date, status, title, area, url, first_seen, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.Date, o.Status, o.Title, o.Area, o.URL,
			formatTime(o.FirstSeen), formatTime(o.LastUpdated),
		); err != nil {
			return fmt.Errorf("insert outage %s: %w", o.ID, err)
		}
		for status := range o.NotifiedStatuses {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO notified_statuses (outage_id, status) VALUES (?, ?)`,
				o.ID, status,
			); err != nil {
				return fmt.Errorf("insert notified status for %s: %w", o.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
