package gitrefs_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"bushi.sh/bushi/core/gitrefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Env,
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		"HOME=/tmp",
	)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

// initBareRepoWithBranchAndTag builds a bare repository (the shape
// ReferenceStream actually opens in production) with one annotated tag
// and one lightweight tag, by pushing into it from a throwaway worktree
// clone.
func initBareRepoWithBranchAndTag(t *testing.T) string {
	t.Helper()
	bareDir := t.TempDir()
	runGit(t, bareDir, "init", "-q", "--bare", "-b", "main")

	workDir := t.TempDir()
	runGit(t, workDir, "clone", "-q", bareDir, ".")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("one\n"), 0o644))
	runGit(t, workDir, "add", "a.txt")
	runGit(t, workDir, "commit", "-q", "-m", "first")
	runGit(t, workDir, "tag", "-a", "-m", "release", "v1.0.0")
	runGit(t, workDir, "tag", "light-tag")
	runGit(t, workDir, "push", "-q", "origin", "main", "v1.0.0", "light-tag")

	return bareDir
}

func TestReferenceStreamEnumeratesBranchAndBothTagKinds(t *testing.T) {
	bareDir := initBareRepoWithBranchAndTag(t)

	stream, err := gitrefs.Open(bareDir, 3, nil)
	require.NoError(t, err)
	defer stream.Close()

	byShortName := map[string]bool{}
	var count int
	for {
		row, ok := stream.Next()
		if !ok {
			break
		}
		count++
		assert.Equal(t, int64(3), row.RepoID)
		assert.Zero(t, row.CommitID, "CommitID is resolved later by ReferenceRow.Upsert, not by gitrefs")
		assert.Len(t, row.CommitHash.String(), 40)
		assert.NotZero(t, row.Time)
		byShortName[row.ShortName] = row.IsTag
	}

	require.Equal(t, 3, count)
	assert.Equal(t, false, byShortName["main"])
	assert.Equal(t, true, byShortName["v1.0.0"])
	assert.Equal(t, true, byShortName["light-tag"])
}

func TestReferenceStreamHonorsExplicitRefList(t *testing.T) {
	bareDir := initBareRepoWithBranchAndTag(t)

	stream, err := gitrefs.Open(bareDir, 9, []string{"refs/heads/main"})
	require.NoError(t, err)
	defer stream.Close()

	row, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, "refs/heads/main", row.FullName)
	assert.Equal(t, "main", row.ShortName)
	assert.False(t, row.IsTag)

	_, ok = stream.Next()
	assert.False(t, ok)
}

func TestReferenceStreamSkipsUnresolvableExplicitRef(t *testing.T) {
	bareDir := initBareRepoWithBranchAndTag(t)

	stream, err := gitrefs.Open(bareDir, 1, []string{"refs/heads/does-not-exist", "refs/heads/main"})
	require.NoError(t, err)
	defer stream.Close()

	row, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, "refs/heads/main", row.FullName)

	_, ok = stream.Next()
	assert.False(t, ok)
}
