package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"droidmind/internal/memory"
)

// OpenPool opens a Postgres connection pool with the same conservative
// defaults the teacher codebase applies, then verifies connectivity.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PostgresStructured is the structured backend: a wide observations table
// with a generated tsvector column for full-text search over node_content.
type PostgresStructured struct {
	pool *pgxpool.Pool
}

// NewPostgresStructured bootstraps the observations table/index and returns
// a ready-to-use backend.
func NewPostgresStructured(ctx context.Context, pool *pgxpool.Pool) (*PostgresStructured, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			id TEXT PRIMARY KEY,
			memory_type TEXT NOT NULL,
			node_content TEXT NOT NULL,
			edge_type TEXT,
			source_entity_id TEXT,
			source_entity_type TEXT,
			target_entity_id TEXT,
			target_entity_type TEXT,
			primary_communication_channel TEXT,
			content_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			importance DOUBLE PRECISION NOT NULL,
			recurrence INTEGER NOT NULL DEFAULT 0,
			node_ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(node_content,''))) STORED
		)`,
		`CREATE INDEX IF NOT EXISTS observations_ts_idx ON observations USING GIN (node_ts)`,
		`CREATE INDEX IF NOT EXISTS observations_memory_type_idx ON observations (memory_type)`,
		`CREATE INDEX IF NOT EXISTS observations_source_idx ON observations (source_entity_id)`,
		`CREATE INDEX IF NOT EXISTS observations_target_idx ON observations (target_entity_id)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return nil, err
		}
	}
	return &PostgresStructured{pool: pool}, nil
}

func (p *PostgresStructured) Insert(ctx context.Context, o memory.Observation) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO observations (id, memory_type, node_content, edge_type, source_entity_id, source_entity_type,
	target_entity_id, target_entity_type, primary_communication_channel, content_id,
	created_at, updated_at, importance, recurrence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
	node_content=EXCLUDED.node_content, edge_type=EXCLUDED.edge_type,
	updated_at=EXCLUDED.updated_at, importance=EXCLUDED.importance, recurrence=EXCLUDED.recurrence
`, o.ID, string(o.MemoryType), o.Node, nullable(o.Edge), nullable(o.SourceEntityID), nullable(o.SourceEntityType),
		nullable(o.TargetEntityID), nullable(o.TargetEntityType), nullable(o.PrimaryChannel), nullable(o.ContentID),
		o.CreatedAt, o.UpdatedAt, o.Importance, o.Recurrence)
	return err
}

func (p *PostgresStructured) Lookup(ctx context.Context, filter StructuredFilter, limit int) ([]memory.Observation, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT id, memory_type, node_content, edge_type, source_entity_id, source_entity_type,
		target_entity_id, target_entity_type, primary_communication_channel, content_id,
		created_at, updated_at, importance, recurrence FROM observations WHERE 1=1`
	args := []any{}
	if filter.MemoryType != nil {
		args = append(args, string(*filter.MemoryType))
		q += " AND memory_type=$" + strconv.Itoa(len(args))
	}
	if filter.SourceEntityID != "" {
		args = append(args, filter.SourceEntityID)
		q += " AND source_entity_id=$" + strconv.Itoa(len(args))
	}
	if filter.TargetEntityID != "" {
		args = append(args, filter.TargetEntityID)
		q += " AND target_entity_id=$" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	q += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (p *PostgresStructured) ByEntity(ctx context.Context, entityID string, limit int) ([]memory.Observation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, memory_type, node_content, edge_type, source_entity_id, source_entity_type,
	target_entity_id, target_entity_type, primary_communication_channel, content_id,
	created_at, updated_at, importance, recurrence
FROM observations WHERE source_entity_id=$1 OR target_entity_id=$1
ORDER BY created_at DESC LIMIT $2`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (p *PostgresStructured) Search(ctx context.Context, query string, memoryType *memory.MemoryType, limit int) ([]ScoredObservation, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	sql := `SELECT id, memory_type, node_content, edge_type, source_entity_id, source_entity_type,
		target_entity_id, target_entity_type, primary_communication_channel, content_id,
		created_at, updated_at, importance, recurrence,
		ts_rank(node_ts, plainto_tsquery('simple',$1)) AS rank
	FROM observations WHERE node_ts @@ plainto_tsquery('simple',$1)`
	args := []any{q}
	if memoryType != nil {
		args = append(args, string(*memoryType))
		sql += " AND memory_type=$" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	sql += " ORDER BY rank DESC LIMIT $" + strconv.Itoa(len(args))
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ScoredObservation, 0, limit)
	for rows.Next() {
		var o memory.Observation
		var memType string
		var rank float64
		var edge, srcID, srcType, tgtID, tgtType, channel, contentID *string
		if err := rows.Scan(&o.ID, &memType, &o.Node, &edge, &srcID, &srcType, &tgtID, &tgtType, &channel, &contentID,
			&o.CreatedAt, &o.UpdatedAt, &o.Importance, &o.Recurrence, &rank); err != nil {
			return nil, err
		}
		o.MemoryType = memory.MemoryType(memType)
		o.Edge = deref(edge)
		o.SourceEntityID = deref(srcID)
		o.SourceEntityType = deref(srcType)
		o.TargetEntityID = deref(tgtID)
		o.TargetEntityType = deref(tgtType)
		o.PrimaryChannel = deref(channel)
		o.ContentID = deref(contentID)
		out = append(out, ScoredObservation{Observation: o, Rank: rank})
	}
	return out, rows.Err()
}

func (p *PostgresStructured) TopByImportanceRecurrence(ctx context.Context, memoryType *memory.MemoryType, limit int) ([]memory.Observation, error) {
	if limit <= 0 {
		limit = 10
	}
	sql := `SELECT id, memory_type, node_content, edge_type, source_entity_id, source_entity_type,
		target_entity_id, target_entity_type, primary_communication_channel, content_id,
		created_at, updated_at, importance, recurrence
	FROM observations`
	args := []any{}
	if memoryType != nil {
		args = append(args, string(*memoryType))
		sql += " WHERE memory_type=$1"
	}
	args = append(args, limit)
	sql += " ORDER BY importance * GREATEST(recurrence,1) DESC LIMIT $" + strconv.Itoa(len(args))
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (p *PostgresStructured) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func scanObservations(rows pgx.Rows) ([]memory.Observation, error) {
	out := make([]memory.Observation, 0)
	for rows.Next() {
		var o memory.Observation
		var memType string
		var edge, srcID, srcType, tgtID, tgtType, channel, contentID *string
		if err := rows.Scan(&o.ID, &memType, &o.Node, &edge, &srcID, &srcType, &tgtID, &tgtType, &channel, &contentID,
			&o.CreatedAt, &o.UpdatedAt, &o.Importance, &o.Recurrence); err != nil {
			return nil, err
		}
		o.MemoryType = memory.MemoryType(memType)
		o.Edge = deref(edge)
		o.SourceEntityID = deref(srcID)
		o.SourceEntityType = deref(srcType)
		o.TargetEntityID = deref(tgtID)
		o.TargetEntityType = deref(tgtType)
		o.PrimaryChannel = deref(channel)
		o.ContentID = deref(contentID)
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

