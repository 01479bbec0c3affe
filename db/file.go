package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// FileRow looks up or inserts a file by name, caching the resolved id on
// itself after the first successful call. The files table is keyed only
// on name and shared across repositories, but the cache key is scoped
// per-repository (repoID + "/" + name) since distinct repositories
// ingest mostly distinct file sets and a global key would only add
// cross-repository contention for little hit-rate gain.
type FileRow struct {
	FileID int64
	Name   string

	repoID int64
	cache  *IDCache
}

// NewFileRow builds a FileRow for name, scoped to repoID for cache-key
// purposes only — the underlying files row is not repo-scoped.
func NewFileRow(repoID int64, name string, opts ...RowOption) *FileRow {
	return &FileRow{Name: name, repoID: repoID, cache: applyRowOptions(opts).cache}
}

func (f *FileRow) cacheKey() string {
	return strconv.FormatInt(f.repoID, 10) + "/" + f.Name
}

// GetOrInsert resolves f.FileID, inserting a new files row if name hasn't
// been seen before.
func (f *FileRow) GetOrInsert(ctx context.Context, e Execer) (int64, error) {
	ctx, span := otel.Tracer("db").Start(ctx, "FileRow.GetOrInsert")
	defer span.End()
	span.SetAttributes(attribute.String("name", f.Name))

	if f.FileID != 0 {
		return f.FileID, nil
	}

	if f.cache != nil {
		if id, ok := f.cache.Get(f.cacheKey()); ok {
			f.FileID = id
			return id, nil
		}
	}

	var fileID int64
	err := e.QueryRowContext(ctx, `select file_id from files where name = ?`, f.Name).Scan(&fileID)
	switch {
	case err == nil:
		f.FileID = fileID
	case err == sql.ErrNoRows:
		res, insErr := e.ExecContext(ctx, `insert or ignore into files(name) values (?)`, f.Name)
		if insErr != nil {
			span.RecordError(insErr)
			return 0, fmt.Errorf("%w: inserting file %q: %v", ErrStorageIO, f.Name, insErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil || id == 0 {
			if selErr := e.QueryRowContext(ctx, `select file_id from files where name = ?`, f.Name).Scan(&fileID); selErr != nil {
				span.RecordError(selErr)
				return 0, fmt.Errorf("%w: resolving file %q after conflict: %v", ErrStorageIO, f.Name, selErr)
			}
			id = fileID
		}
		f.FileID = id
	default:
		span.RecordError(err)
		return 0, fmt.Errorf("%w: looking up file %q: %v", ErrStorageIO, f.Name, err)
	}

	if f.cache != nil {
		f.cache.Set(f.cacheKey(), f.FileID)
	}
	return f.FileID, nil
}
