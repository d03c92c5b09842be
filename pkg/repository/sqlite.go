package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	input_text    TEXT NOT NULL,
	input_preview TEXT NOT NULL,
	risk_label    TEXT NOT NULL,
	risk_score    REAL NOT NULL,
	snapshot      TEXT NOT NULL,
	report        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_created_at
ON records(created_at DESC);
`

// sqliteRepo implements Repository on a local SQLite file. sql.DB handles
// connection pooling, so the type itself holds no locks.
type sqliteRepo struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite-backed repository at path. Parent
// directories are created as needed. Use ":memory:" for an ephemeral store.
func NewSQLite(path string) (Repository, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("dir", dir))
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to initialize sqlite schema")
	}

	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) PutRecord(ctx context.Context, record *model.Record) error {
	snapshot, err := json.Marshal(record.Snapshot)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal snapshot")
	}
	report, err := json.Marshal(record.Report)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal report")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO records
		 (id, created_at, input_text, input_preview, risk_label, risk_score, snapshot, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(record.ID),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.InputText,
		record.InputPreview,
		record.Report.RiskLabel,
		record.Report.RiskScore,
		string(snapshot),
		string(report),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert record", goerr.V("id", record.ID))
	}
	return nil
}

func (r *sqliteRepo) GetRecord(ctx context.Context, id model.RecordID) (*model.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, input_text, input_preview, snapshot, report
		 FROM records WHERE id = ?`, string(id))

	var (
		record    model.Record
		createdAt string
		rawID     string
		snapshot  string
		report    string
	)
	err := row.Scan(&rawID, &createdAt, &record.InputText, &record.InputPreview, &snapshot, &report)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(ErrRecordNotFound, "no such record", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query record", goerr.V("id", id))
	}

	record.ID = model.RecordID(rawID)
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, goerr.Wrap(err, "failed to parse created_at", goerr.V("value", createdAt))
	}
	if err := json.Unmarshal([]byte(snapshot), &record.Snapshot); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal snapshot")
	}
	if err := json.Unmarshal([]byte(report), &record.Report); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal report")
	}

	return &record, nil
}

func (r *sqliteRepo) ListRecords(ctx context.Context, limit int) ([]*model.RecordSummary, error) {
	if limit <= 0 {
		return []*model.RecordSummary{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, input_preview, risk_label, risk_score
		 FROM records ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	summaries := []*model.RecordSummary{}
	for rows.Next() {
		var (
			summary   model.RecordSummary
			rawID     string
			createdAt string
		)
		if err := rows.Scan(&rawID, &createdAt, &summary.InputPreview, &summary.RiskLabel, &summary.RiskScore); err != nil {
			return nil, goerr.Wrap(err, "failed to scan record row")
		}
		summary.ID = model.RecordID(rawID)
		if summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to parse created_at", goerr.V("value", createdAt))
		}
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate record rows")
	}

	return summaries, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}
