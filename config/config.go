// Package config loads the two-tier configuration bushi runs on: a
// checked-in YAML document describing the site and its repositories,
// and a flat set of operational knobs read from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"bushi.sh/bushi/core/markfile"
)

// ErrConfigInvalid is returned when the document fails to parse or a
// path it names can't be canonicalized.
var ErrConfigInvalid = errors.New("config: invalid document")

// RepoSpec is one configured repository. Mutation (stamping RepoID in)
// is the orchestrator's responsibility, serialized through the
// sync.RWMutex it holds over its RepoSpec map — RepoSpec itself carries
// no locking.
type RepoSpec struct {
	RepoID      int64  `yaml:"repo_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"desc"`
	Head        string `yaml:"head"`
	Path        string `yaml:"path"`
}

// Document is the site/repository domain document, loaded from YAML.
type Document struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Path        string      `yaml:"path"`
	Repo        []*RepoSpec `yaml:"repo"`
}

// Canonicalize resolves Path and every RepoSpec.Path to an absolute,
// symlink-free directory, failing with ErrConfigInvalid if any of them
// don't exist.
func (d *Document) Canonicalize() error {
	resolved, err := canonicalize(d.Path)
	if err != nil {
		return fmt.Errorf("%w: work dir %q: %v", ErrConfigInvalid, d.Path, err)
	}
	d.Path = resolved

	for _, repo := range d.Repo {
		resolved, err := canonicalize(repo.Path)
		if err != nil {
			return fmt.Errorf("%w: repo %q path %q: %v", ErrConfigInvalid, repo.Name, repo.Path, err)
		}
		repo.Path = resolved
	}
	return nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// InitMarks creates an empty mark file for every repository that
// doesn't already have one under Path, returning the count created.
func (d *Document) InitMarks() (int, error) {
	created := 0
	for _, repo := range d.Repo {
		path, err := markfile.Path(d.Path, repo.Name)
		if err != nil {
			return created, fmt.Errorf("%w: mark file path for %q: %v", ErrConfigInvalid, repo.Name, err)
		}
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return created, fmt.Errorf("%w: statting mark file for %q: %v", ErrConfigInvalid, repo.Name, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return created, fmt.Errorf("%w: creating mark file for %q: %v", ErrConfigInvalid, repo.Name, err)
		}
		f.Close()
		created++
	}
	return created, nil
}

// ByName indexes the document's repositories by name.
func (d *Document) ByName() map[string]*RepoSpec {
	h := make(map[string]*RepoSpec, len(d.Repo))
	for _, repo := range d.Repo {
		h[repo.Name] = repo
	}
	return h
}
