package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// RepoRow looks up or inserts a repository by name, caching the resolved
// id on itself after the first successful call.
type RepoRow struct {
	RepoID int64
	Name   string

	cache *IDCache
}

// NewRepoRow builds a RepoRow for name.
func NewRepoRow(name string, opts ...RowOption) *RepoRow {
	return &RepoRow{Name: name, cache: applyRowOptions(opts).cache}
}

// GetOrInsert resolves r.RepoID, inserting a new repositories row if name
// hasn't been seen before. Concurrent inserts of the same name are
// guarded by the single-writer property of the actor that runs this; the
// ON CONFLICT clause is defense-in-depth, not the primary guard.
func (r *RepoRow) GetOrInsert(ctx context.Context, e Execer) (int64, error) {
	ctx, span := otel.Tracer("db").Start(ctx, "RepoRow.GetOrInsert")
	defer span.End()
	span.SetAttributes(attribute.String("name", r.Name))

	if r.RepoID != 0 {
		return r.RepoID, nil
	}

	if r.cache != nil {
		if id, ok := r.cache.Get(r.Name); ok {
			r.RepoID = id
			return id, nil
		}
	}

	var repoID int64
	err := e.QueryRowContext(ctx, `select repo_id from repositories where name = ?`, r.Name).Scan(&repoID)
	switch {
	case err == nil:
		r.RepoID = repoID
	case err == sql.ErrNoRows:
		res, insErr := e.ExecContext(ctx, `insert or ignore into repositories(name) values (?)`, r.Name)
		if insErr != nil {
			span.RecordError(insErr)
			return 0, fmt.Errorf("%w: inserting repository %q: %v", ErrStorageIO, r.Name, insErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil || id == 0 {
			// lost the insert race to another writer; re-read
			if selErr := e.QueryRowContext(ctx, `select repo_id from repositories where name = ?`, r.Name).Scan(&repoID); selErr != nil {
				span.RecordError(selErr)
				return 0, fmt.Errorf("%w: resolving repository %q after conflict: %v", ErrStorageIO, r.Name, selErr)
			}
			id = repoID
		}
		r.RepoID = id
	default:
		span.RecordError(err)
		return 0, fmt.Errorf("%w: looking up repository %q: %v", ErrStorageIO, r.Name, err)
	}

	if r.cache != nil {
		r.cache.Set(r.Name, r.RepoID)
	}
	return r.RepoID, nil
}
