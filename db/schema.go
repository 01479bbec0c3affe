package db

import (
	"database/sql"
	"fmt"
)

// ApplySchema idempotently creates every table, index, and trigger the
// core needs. It is safe to call on every process start.
func ApplySchema(conn *sql.DB) error {
	_, err := conn.Exec(`
		create table if not exists repositories (
			repo_id integer primary key autoincrement,
			name text not null
		);
		create unique index if not exists idx_repositories_name
			on repositories(name);

		create table if not exists files (
			file_id integer primary key autoincrement,
			name text not null
		);
		create unique index if not exists idx_files_name
			on files(name);

		create table if not exists commits (
			commit_id integer primary key autoincrement,
			repo_id integer not null,
			commit_hash text not null,
			commit_mark integer not null,
			parent_mark integer,
			parent_id integer,
			depth integer not null default 0,
			foreign key (repo_id) references repositories(repo_id),
			foreign key (parent_id) references commits(commit_id)
		);
		create unique index if not exists idx_commits_repo_hash
			on commits(repo_id, commit_hash);
		create unique index if not exists idx_commits_repo_mark
			on commits(repo_id, commit_mark);

		create table if not exists commit_files (
			commit_id integer not null,
			file_id integer not null,
			unique(commit_id, file_id),
			foreign key (commit_id) references commits(commit_id),
			foreign key (file_id) references files(file_id)
		);

		create table if not exists ancestors (
			commit_id integer not null,
			ancestor_id integer not null,
			level integer not null,
			primary key (commit_id, level),
			foreign key (commit_id) references commits(commit_id),
			foreign key (ancestor_id) references commits(commit_id)
		);

		create table if not exists refs (
			repo_id integer not null,
			full_name text not null,
			short_name text not null,
			commit_id integer not null,
			commit_hash text not null,
			time integer not null,
			is_tag integer not null,
			primary key (repo_id, full_name),
			foreign key (repo_id) references repositories(repo_id),
			foreign key (commit_id) references commits(commit_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("%w: applying schema: %v", ErrStorageIO, err)
	}

	if err := applyAncestorTrigger(conn); err != nil {
		return err
	}
	return nil
}

// applyAncestorTrigger installs the after-insert trigger that
// materializes the ancestor skip-list for a newly inserted commit row:
//
//	ancestor(c, 0)   = parent(c)
//	ancestor(c, k+1) = ancestor(ancestor(c, k), k)
//
// A level-k row is kept as long as its implied depth, depth - 2^k, is a
// real depth (>= 0) — level 0 is always the immediate parent whenever one
// exists, which is why a depth-1 commit still gets a single level-0
// ancestor row even though depth - 2^0 == 0. sqlite has no loop construct
// in a trigger body, so the recursion is unrolled via a recursive CTE
// that walks the parent's own ancestor rows one level at a time and stops
// once it runs out of valid levels.
func applyAncestorTrigger(conn *sql.DB) error {
	_, err := conn.Exec(`
		drop trigger if exists trg_commits_ancestors;
		create trigger trg_commits_ancestors
		after insert on commits
		when new.parent_id is not null
		begin
			insert into ancestors (commit_id, ancestor_id, level)
			with recursive chain(level, ancestor_id) as (
				select 0, new.parent_id
				union all
				select chain.level + 1, a.ancestor_id
				from chain
				join ancestors a
					on a.commit_id = chain.ancestor_id
					and a.level = chain.level
				where new.depth - (1 << (chain.level + 1)) >= 0
			)
			select new.commit_id, ancestor_id, level from chain;
		end;
	`)
	if err != nil {
		return fmt.Errorf("%w: installing ancestor trigger: %v", ErrStorageIO, err)
	}
	return nil
}
