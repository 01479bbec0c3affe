// Package gitrefs enumerates and peels branch/tag references of a bare
// repository using go-git, rather than shelling out a second time: the
// commit history already goes through exporter, but references need
// typed peeling go-git gives for free.
package gitrefs

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"bushi.sh/bushi/core/db"
	"bushi.sh/bushi/core/oid"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storer"
)

// ErrOpen is returned by Open when the bare repository can't be opened.
var ErrOpen = errors.New("gitrefs: failed to open repository")

// objectCacheSize bounds how much of the loose/pack object graph go-git
// keeps warm in memory. This is a read-heavy, one-shot-per-sync
// workload rather than an interactive one, so the default (sized for
// repeated diff/blame browsing) is wasteful; Configure lets a caller
// size it down once at process start.
var objectCacheSize = 8 * cache.MiByte

// Configure overrides the object cache budget used by every repository
// Open opens from this point on. Call once, explicitly, at process
// start — never from a package init(), so tests and other embedders
// keep control of when go-git's cache is sized.
func Configure(maxBytes cache.FileSize) {
	objectCacheSize = maxBytes
}

// ReferenceStream is a finite, non-restartable sequence of
// *db.ReferenceRow over a bare repository's branches and tags.
type ReferenceStream struct {
	repo   *git.Repository
	repoID int64

	names []string
	idx   int
	iter  storer.ReferenceIter
}

// Open opens the bare repository at repoPath. If refs is non-empty, the
// stream visits exactly those full reference names (each resolved
// individually); otherwise it enumerates every reference in the
// repository.
func Open(repoPath string, repoID int64, refs []string) (*ReferenceStream, error) {
	fs := osfs.New(repoPath)
	storer := filesystem.NewStorageWithOptions(fs, cache.NewObjectLRU(objectCacheSize), filesystem.Options{})

	repo, err := git.Open(storer, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, repoPath, err)
	}

	s := &ReferenceStream{repo: repo, repoID: repoID}
	if len(refs) > 0 {
		s.names = refs
		return s, nil
	}

	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("%w: listing references in %s: %v", ErrOpen, repoPath, err)
	}
	s.iter = iter
	return s, nil
}

// Next returns the next reference row, or (nil, false) once every
// candidate reference has been visited.
func (s *ReferenceStream) Next() (*db.ReferenceRow, bool) {
	for {
		ref, ok := s.nextCandidate()
		if !ok {
			return nil, false
		}
		row, skip := s.buildRow(ref)
		if skip {
			continue
		}
		return row, true
	}
}

func (s *ReferenceStream) nextCandidate() (*plumbing.Reference, bool) {
	if s.names != nil {
		for s.idx < len(s.names) {
			name := s.names[s.idx]
			s.idx++
			ref, err := s.repo.Reference(plumbing.ReferenceName(name), true)
			if err != nil {
				continue
			}
			return ref, true
		}
		return nil, false
	}

	ref, err := s.iter.Next()
	if err != nil {
		return nil, false
	}
	return ref, true
}

func (s *ReferenceStream) buildRow(ref *plumbing.Reference) (row *db.ReferenceRow, skip bool) {
	if ref.Type() != plumbing.HashReference {
		return nil, true
	}

	full := ref.Name().String()
	isTag := strings.HasPrefix(full, "refs/tags/")
	isBranch := strings.HasPrefix(full, "refs/heads/")
	if !isTag && !isBranch {
		return nil, true
	}

	short := strings.ReplaceAll(ref.Name().Short(), "/", ":")
	if short == full {
		return nil, true
	}

	commit, err := s.peelToCommit(ref.Hash())
	if err != nil {
		return nil, true
	}

	hash, err := oid.Parse(commit.Hash.String())
	if err != nil {
		return nil, true
	}

	return &db.ReferenceRow{
		RepoID:     s.repoID,
		FullName:   full,
		ShortName:  short,
		CommitHash: hash,
		Time:       commit.Committer.When.Unix(),
		IsTag:      isTag,
	}, false
}

func (s *ReferenceStream) peelToCommit(hash plumbing.Hash) (*object.Commit, error) {
	tag, err := s.repo.TagObject(hash)
	switch {
	case err == nil:
		return tag.Commit()
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return s.repo.CommitObject(hash)
	default:
		return nil, err
	}
}

// Close releases the repository's underlying storage handles.
func (s *ReferenceStream) Close() error {
	if s.iter != nil {
		s.iter.Close()
	}
	if c, ok := s.repo.Storer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
