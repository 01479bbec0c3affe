package db

import (
	"context"
	"errors"
	"fmt"

	"bushi.sh/bushi/core/oid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownCommit is returned by ReferenceRow.Upsert when neither a
// commit id nor a hash that resolves to one was given.
var ErrUnknownCommit = errors.New("db: reference points at unknown commit")

// ReferenceRow is a branch or tag tip, upserted by (repo_id, full_name).
type ReferenceRow struct {
	RepoID     int64
	FullName   string
	ShortName  string
	CommitID   int64
	CommitHash oid.Oid
	Time       int64
	IsTag      bool
}

// Upsert resolves r.CommitID from r.CommitHash if it wasn't already
// known, then inserts or updates the refs row for (repo_id, full_name).
// An existing row's short_name, commit, time, and tag/branch flag are
// replaced wholesale — refs have no history, only a current tip.
func (r *ReferenceRow) Upsert(ctx context.Context, e Execer) error {
	ctx, span := otel.Tracer("db").Start(ctx, "ReferenceRow.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("repo_id", r.RepoID),
		attribute.String("full_name", r.FullName),
	)

	if r.CommitID == 0 {
		commitID, err := GetIDByHash(ctx, e, r.RepoID, r.CommitHash)
		if err != nil {
			span.RecordError(err)
			return err
		}
		r.CommitID = commitID
	}
	if r.CommitID == 0 {
		err := fmt.Errorf("%w: repo %d ref %s hash %s", ErrUnknownCommit, r.RepoID, r.FullName, r.CommitHash)
		span.RecordError(err)
		return err
	}

	_, err := e.ExecContext(ctx, `
		insert into refs (full_name, short_name, commit_id, commit_hash, time, repo_id, is_tag)
		values (?, ?, ?, ?, ?, ?, ?)
		on conflict(repo_id, full_name) do update set
			short_name = excluded.short_name,
			commit_id = excluded.commit_id,
			commit_hash = excluded.commit_hash,
			time = excluded.time,
			is_tag = excluded.is_tag
	`, r.FullName, r.ShortName, r.CommitID, r.CommitHash.String(), r.Time, r.RepoID, r.IsTag)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: upserting ref %s: %v", ErrStorageIO, r.FullName, err)
	}
	return nil
}
