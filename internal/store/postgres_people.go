package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"droidmind/internal/memory"
)

// PostgresPeople stores InterpersonalRelationship rows and answers trigram
// fuzzy name matches via pg_trgm's similarity() function, following the
// same generated-column/GIN-index idiom the observations table uses for
// full-text search.
type PostgresPeople struct {
	pool *pgxpool.Pool
}

// NewPostgresPeople bootstraps the pg_trgm extension and the people table.
func NewPostgresPeople(ctx context.Context, pool *pgxpool.Pool) (*PostgresPeople, error) {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE TABLE IF NOT EXISTS people (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT,
			full_name TEXT NOT NULL,
			platform TEXT,
			platform_handle TEXT,
			relationship_description TEXT NOT NULL,
			last_interacted_at TIMESTAMPTZ,
			interaction_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS people_full_name_trgm_idx ON people USING GIN (full_name gin_trgm_ops)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return nil, err
		}
	}
	return &PostgresPeople{pool: pool}, nil
}

func (p *PostgresPeople) Upsert(ctx context.Context, r memory.InterpersonalRelationship) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO people (id, first_name, last_name, full_name, platform, platform_handle,
	relationship_description, last_interacted_at, interaction_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name, full_name=EXCLUDED.full_name,
	platform=EXCLUDED.platform, platform_handle=EXCLUDED.platform_handle,
	relationship_description=EXCLUDED.relationship_description
`, r.ID, r.FirstName, nullable(r.LastName), r.FullName, nullable(r.Platform), nullable(r.PlatformHandle),
		r.RelationshipDescription, r.LastInteractedAt, r.InteractionCount)
	return err
}

func (p *PostgresPeople) GetByID(ctx context.Context, id string) (memory.InterpersonalRelationship, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, first_name, last_name, full_name, platform, platform_handle, relationship_description,
	last_interacted_at, interaction_count
FROM people WHERE id=$1`, id)
	var r memory.InterpersonalRelationship
	var lastName, platform, handle *string
	if err := row.Scan(&r.ID, &r.FirstName, &lastName, &r.FullName, &platform, &handle,
		&r.RelationshipDescription, &r.LastInteractedAt, &r.InteractionCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memory.InterpersonalRelationship{}, ErrNotFound
		}
		return memory.InterpersonalRelationship{}, err
	}
	r.LastName = deref(lastName)
	r.Platform = deref(platform)
	r.PlatformHandle = deref(handle)
	return r, nil
}

// FindByName returns trigram-similarity matches ordered by descending score.
// An empty name always yields an empty result, matching the spec's boundary
// behavior for find_person_by_name("").
func (p *PostgresPeople) FindByName(ctx context.Context, name string, threshold float64, limit int) ([]PersonMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.pool.Query(ctx, `
SELECT full_name, relationship_description, similarity(full_name, $1) AS score
FROM people
WHERE similarity(full_name, $1) >= $2
ORDER BY score DESC
LIMIT $3`, name, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]PersonMatch, 0, limit)
	for rows.Next() {
		var m PersonMatch
		if err := rows.Scan(&m.FullName, &m.Description, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresPeople) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
