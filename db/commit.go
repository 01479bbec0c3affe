package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"bushi.sh/bushi/core/oid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownParent is returned when a non-zero parent mark doesn't resolve
// to a previously inserted commit. Since fast-export always emits a
// commit's parents before the commit itself, this only happens if a caller
// feeds marks out of order.
var ErrUnknownParent = errors.New("db: parent mark not found")

// CommitRow is a single commit ready to be inserted: its hash, its
// exporter-assigned mark, its parent's mark (0 for a root), and the set of
// file paths it touches.
type CommitRow struct {
	RepoID     int64
	CommitHash oid.Oid
	CommitMark int64
	ParentMark int64
	Files      []string

	opts []RowOption
}

// NewCommitRow builds a CommitRow. opts (e.g. WithIDCache) are forwarded
// to the FileRow lookups Insert performs for c.Files.
func NewCommitRow(repoID int64, hash oid.Oid, mark, parentMark int64, files []string, opts ...RowOption) *CommitRow {
	return &CommitRow{
		RepoID:     repoID,
		CommitHash: hash,
		CommitMark: mark,
		ParentMark: parentMark,
		Files:      files,
		opts:       opts,
	}
}

// Insert resolves the parent, writes the commit row at the correct depth,
// links its files, and commits. The after-insert trigger on commits takes
// care of materializing the ancestor skip-list; Insert does not touch the
// ancestors table itself.
//
// A commit whose parent mark is 0 is a root: depth 0, parent_id NULL.
// Roots are logged at INFO since a sync with more than one root usually
// means a grafted or shallow history worth noticing.
func (c *CommitRow) Insert(ctx context.Context, conn *sql.DB) (commitID int64, err error) {
	ctx, span := otel.Tracer("db").Start(ctx, "CommitRow.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("repo_id", c.RepoID),
		attribute.Int64("commit_mark", c.CommitMark),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning commit insert: %v", ErrStorageIO, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	parentID, parentDepth, err := getIDDepthByMark(ctx, tx, c.RepoID, c.ParentMark)
	if err != nil {
		return 0, err
	}

	if parentID == 0 {
		if c.ParentMark != 0 {
			return 0, fmt.Errorf("%w: repo %d mark %d", ErrUnknownParent, c.RepoID, c.ParentMark)
		}
		slog.Info("root commit", "repo_id", c.RepoID, "commit_mark", c.CommitMark, "commit_hash", c.CommitHash.String())
		_, err = tx.ExecContext(ctx,
			`insert into commits(commit_hash, commit_mark, depth, repo_id, parent_id) values (?, ?, 0, ?, null)`,
			c.CommitHash.String(), c.CommitMark, c.RepoID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`insert into commits(commit_hash, commit_mark, parent_mark, depth, repo_id, parent_id) values (?, ?, ?, ?, ?, ?)`,
			c.CommitHash.String(), c.CommitMark, c.ParentMark, parentDepth+1, c.RepoID, parentID,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: inserting commit mark %d: %v", ErrStorageIO, c.CommitMark, err)
	}

	commitID, _, err = getIDDepthByMark(ctx, tx, c.RepoID, c.CommitMark)
	if err != nil {
		return 0, err
	}
	if commitID == 0 {
		return 0, fmt.Errorf("%w: commit mark %d vanished after insert", ErrStorageIO, c.CommitMark)
	}

	for _, name := range c.Files {
		file := NewFileRow(c.RepoID, name, c.opts...)
		fileID, ferr := file.GetOrInsert(ctx, tx)
		if ferr != nil {
			err = ferr
			return 0, err
		}
		if _, err = tx.ExecContext(ctx, `insert or ignore into commit_files(commit_id, file_id) values (?, ?)`, commitID, fileID); err != nil {
			return 0, fmt.Errorf("%w: linking file %q to commit %d: %v", ErrStorageIO, name, commitID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing commit mark %d: %v", ErrStorageIO, c.CommitMark, err)
	}
	return commitID, nil
}

// GetIDByHash resolves a commit_hash within repoID to its commit_id, or 0
// if there is no such row (or hash is the zero Oid).
func GetIDByHash(ctx context.Context, e Execer, repoID int64, hash oid.Oid) (int64, error) {
	ctx, span := otel.Tracer("db").Start(ctx, "GetIDByHash")
	defer span.End()
	span.SetAttributes(attribute.Int64("repo_id", repoID))

	if hash.IsZero() {
		return 0, nil
	}
	var commitID int64
	err := e.QueryRowContext(ctx, `select commit_id from commits where repo_id = ? and commit_hash = ? limit 1`, repoID, hash.String()).Scan(&commitID)
	switch {
	case err == nil:
		return commitID, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	default:
		span.RecordError(err)
		return 0, fmt.Errorf("%w: looking up commit hash %s: %v", ErrStorageIO, hash, err)
	}
}

// getIDDepthByMark resolves (commit_id, depth) for a mark within repoID.
// mark 0 is the sentinel "no parent" and always resolves to (0, 0)
// without touching the database.
func getIDDepthByMark(ctx context.Context, e Execer, repoID, mark int64) (int64, int64, error) {
	if mark == 0 {
		return 0, 0, nil
	}
	var commitID, depth int64
	err := e.QueryRowContext(ctx, `select commit_id, depth from commits where repo_id = ? and commit_mark = ? limit 1`, repoID, mark).Scan(&commitID, &depth)
	switch {
	case err == nil:
		return commitID, depth, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: looking up commit mark %d: %v", ErrStorageIO, mark, err)
	}
}
