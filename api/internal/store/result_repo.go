// Package store persists audit outcomes in Postgres. Persistence is an
// optional sink: the pipeline never depends on it and a missing DSN simply
// skips the repo.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"video-auditor/api/internal/audit"
)

type ResultRepo struct{ DB *sql.DB }

func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{DB: db} }

// EnsureSchema creates the results table if it does not exist yet.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	const q = `
create table if not exists audit_results (
    id            bigserial primary key,
    run_stamp     text not null,
    unit_index    int not null,
    video_url     text not null,
    video_id      text not null default '',
    title         text not null,
    persona       text not null,
    run           int not null,
    accuracy      double precision,
    logic         double precision,
    adaptability  double precision,
    engagement    double precision,
    weighted      double precision,
    success       boolean not null,
    error         text not null default '',
    result_json   jsonb not null,
    created_at    timestamptz not null default now()
)`
	if _, err := r.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure audit_results: %w", err)
	}
	return nil
}

// Save inserts one unit outcome. The full record goes into result_json; the
// scalar columns exist for SQL-side filtering only.
func (r *ResultRepo) Save(ctx context.Context, stamp string, res *audit.Result) error {
	js, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	const q = `
insert into audit_results(
    run_stamp, unit_index, video_url, video_id, title, persona, run,
    accuracy, logic, adaptability, engagement, weighted,
    success, error, result_json)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = r.DB.ExecContext(ctx, q,
		stamp, res.Unit.Index, res.Unit.VideoURL, res.Unit.VideoID,
		res.Unit.Title, res.Unit.Persona, res.Unit.Run,
		nullScore(res.Accuracy.Score, res.Success),
		nullScore(res.Logic.Score, res.Success),
		nullScore(res.Adaptability.Score, res.Success),
		nullScore(res.Engagement.Score, res.Success),
		nullScore(res.WeightedTotal(), res.Success),
		res.Success, res.Err, js,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// SaveAll persists a whole run. First failure aborts; already-written rows
// stay, so a rerun with a fresh stamp is always safe.
func (r *ResultRepo) SaveAll(ctx context.Context, stamp string, results []*audit.Result) error {
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := r.Save(ctx, stamp, res); err != nil {
			return err
		}
	}
	return nil
}

// RecentRuns lists distinct run stamps, newest first.
func (r *ResultRepo) RecentRuns(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
select run_stamp from audit_results
group by run_stamp
order by max(created_at) desc
limit $1`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var stamps []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		stamps = append(stamps, s)
	}
	return stamps, rows.Err()
}

func nullScore(v float64, ok bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: ok}
}

// Open dials Postgres, tunes the pool for light write traffic and verifies
// the connection before handing the handle out.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}
