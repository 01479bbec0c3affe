// Package orchestrator drives a full or single-repository sync: for each
// configured repository it ensures a store-side identity, drains the
// commit exporter, then drains the reference reader, submitting every
// row it produces to a DbActor.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"bushi.sh/bushi/core/actor"
	"bushi.sh/bushi/core/config"
	"bushi.sh/bushi/core/db"
	"bushi.sh/bushi/core/exporter"
	"bushi.sh/bushi/core/gitrefs"
	"bushi.sh/bushi/core/markfile"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// State is a per-repository sync's progress, used only to label which
// step a RepoSyncError happened in.
type State int

const (
	Unknown State = iota
	RepoIDEnsured
	CommitsDrained
	RefsDrained
)

func (s State) String() string {
	switch s {
	case RepoIDEnsured:
		return "RepoIDEnsured"
	case CommitsDrained:
		return "CommitsDrained"
	case RefsDrained:
		return "RefsDrained"
	default:
		return "Unknown"
	}
}

// RepoSyncError reports that a single repository's sync aborted partway
// through; other repositories are unaffected.
type RepoSyncError struct {
	Repo  string
	State State
	Err   error
}

func (e *RepoSyncError) Error() string {
	return fmt.Sprintf("orchestrator: repo %q failed at %s: %v", e.Repo, e.State, e.Err)
}

func (e *RepoSyncError) Unwrap() error { return e.Err }

// commitProgressEvery and refProgressEvery control how often drainCommits
// and drainRefs log a progress line.
const (
	commitProgressEvery = 1000
	refProgressEvery    = 100
)

// Orchestrator runs the sync algorithm over a set of configured
// repositories, using actor to serialize every write against the store.
type Orchestrator struct {
	workDir string
	actor   *actor.DbActor
	logger  *slog.Logger

	mu    sync.RWMutex
	repos map[string]*config.RepoSpec
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger overrides the default (slog.Default()) logger progress and
// per-repository completion lines are reported through. Root-commit lines
// are logged by db.CommitRow.Insert through slog's default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New builds an Orchestrator over workDir (owning .bushi.db and the
// per-repository mark files) and the given repositories, keyed by name.
func New(workDir string, dbActor *actor.DbActor, repos []*config.RepoSpec, opts ...Option) *Orchestrator {
	byName := make(map[string]*config.RepoSpec, len(repos))
	for _, r := range repos {
		byName[r.Name] = r
	}
	o := &Orchestrator{
		workDir: workDir,
		actor:   dbActor,
		logger:  slog.Default(),
		repos:   byName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close shuts down the Orchestrator's DbActor, draining any in-flight
// unit and closing the underlying store. Call it once the Orchestrator
// is no longer needed.
func (o *Orchestrator) Close() error {
	return o.actor.Close()
}

// SyncAll runs the full per-repository algorithm over every configured
// repository, never failing fast: each repository's failure is recorded
// and the rest still proceed.
func (o *Orchestrator) SyncAll(ctx context.Context) []*RepoSyncError {
	o.mu.RLock()
	specs := make([]*config.RepoSpec, 0, len(o.repos))
	for _, spec := range o.repos {
		specs = append(specs, spec)
	}
	o.mu.RUnlock()

	var failures []*RepoSyncError
	for _, spec := range specs {
		if err := o.syncRepo(ctx, spec, nil); err != nil {
			var syncErr *RepoSyncError
			if !asRepoSyncError(err, &syncErr) {
				syncErr = &RepoSyncError{Repo: spec.Name, State: Unknown, Err: err}
			}
			failures = append(failures, syncErr)
		}
	}
	return failures
}

// SyncOne runs steps 3-4 (commits, then the given refs) for the single
// configured repository whose canonicalized path matches path. An empty
// refs slice means "all references".
func (o *Orchestrator) SyncOne(ctx context.Context, path string, refs []string) error {
	o.mu.RLock()
	var spec *config.RepoSpec
	for _, s := range o.repos {
		if s.Path == path {
			spec = s
			break
		}
	}
	o.mu.RUnlock()

	if spec == nil {
		return fmt.Errorf("orchestrator: no configured repository at path %q", path)
	}

	o.mu.RLock()
	repoID := spec.RepoID
	o.mu.RUnlock()
	if repoID == 0 {
		var err error
		if repoID, err = o.ensureRepoID(ctx, spec); err != nil {
			return &RepoSyncError{Repo: spec.Name, State: Unknown, Err: err}
		}
	}

	markPath, err := markfile.Path(o.workDir, spec.Name)
	if err != nil {
		return &RepoSyncError{Repo: spec.Name, State: RepoIDEnsured, Err: err}
	}
	if _, err := markfile.EnsureExists(markPath); err != nil {
		return &RepoSyncError{Repo: spec.Name, State: RepoIDEnsured, Err: err}
	}

	if err := o.drainCommits(ctx, spec, repoID, markPath); err != nil {
		return &RepoSyncError{Repo: spec.Name, State: RepoIDEnsured, Err: err}
	}
	if err := o.drainRefs(ctx, spec, repoID, refs); err != nil {
		return &RepoSyncError{Repo: spec.Name, State: CommitsDrained, Err: err}
	}
	return nil
}

func (o *Orchestrator) syncRepo(ctx context.Context, spec *config.RepoSpec, explicitRefs []string) (err error) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "syncRepo")
	span.SetAttributes(attribute.String("repo", spec.Name))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	markPath, err := markfile.Path(o.workDir, spec.Name)
	if err != nil {
		return &RepoSyncError{Repo: spec.Name, State: Unknown, Err: err}
	}
	if _, err := markfile.EnsureExists(markPath); err != nil {
		return &RepoSyncError{Repo: spec.Name, State: Unknown, Err: err}
	}

	repoID, err := o.ensureRepoID(ctx, spec)
	if err != nil {
		return &RepoSyncError{Repo: spec.Name, State: Unknown, Err: err}
	}

	if err := o.drainCommits(ctx, spec, repoID, markPath); err != nil {
		return &RepoSyncError{Repo: spec.Name, State: RepoIDEnsured, Err: err}
	}

	if err := o.drainRefs(ctx, spec, repoID, explicitRefs); err != nil {
		return &RepoSyncError{Repo: spec.Name, State: CommitsDrained, Err: err}
	}

	o.logger.Info("repository synced", "repo", spec.Name, "state", RefsDrained.String())
	return nil
}

func (o *Orchestrator) ensureRepoID(ctx context.Context, spec *config.RepoSpec) (int64, error) {
	row := db.NewRepoRow(spec.Name)
	result, err := o.actor.SubmitAsync(ctx, func(ctx context.Context, conn *sql.DB) (any, error) {
		return row.GetOrInsert(ctx, conn)
	})
	if err != nil {
		return 0, err
	}
	repoID := result.(int64)

	o.mu.Lock()
	spec.RepoID = repoID
	o.mu.Unlock()

	return repoID, nil
}

func (o *Orchestrator) drainCommits(ctx context.Context, spec *config.RepoSpec, repoID int64, markPath string) error {
	stream, err := exporter.Open(spec.Path, markPath, repoID)
	if err != nil {
		return err
	}

	var count int
	for {
		row, ok := stream.Next()
		if !ok {
			break
		}
		if _, err := o.actor.SubmitAsync(ctx, func(ctx context.Context, conn *sql.DB) (any, error) {
			return row.Insert(ctx, conn)
		}); err != nil {
			stream.Close()
			return err
		}
		count++
		if count%commitProgressEvery == 0 {
			o.logger.Info("commits synced", "repo", spec.Name, "count", count)
		}
	}
	return stream.Close()
}

func (o *Orchestrator) drainRefs(ctx context.Context, spec *config.RepoSpec, repoID int64, explicitRefs []string) error {
	stream, err := gitrefs.Open(spec.Path, repoID, explicitRefs)
	if err != nil {
		return err
	}

	var count int
	for {
		row, ok := stream.Next()
		if !ok {
			break
		}
		if _, err := o.actor.SubmitAsync(ctx, func(ctx context.Context, conn *sql.DB) (any, error) {
			return nil, row.Upsert(ctx, conn)
		}); err != nil {
			stream.Close()
			return err
		}
		count++
		if count%refProgressEvery == 0 {
			o.logger.Info("references synced", "repo", spec.Name, "count", count)
		}
	}
	return stream.Close()
}

func asRepoSyncError(err error, target **RepoSyncError) bool {
	se, ok := err.(*RepoSyncError)
	if !ok {
		return false
	}
	*target = se
	return true
}
