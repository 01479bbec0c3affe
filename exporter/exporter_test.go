package exporter_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"bushi.sh/bushi/core/exporter"

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

func initRepoWithTwoCommits(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	require.NoError(t, writeFile(filepath.Join(dir, "a.txt"), "one\n"))
	runGit(t, dir, "add", "a.txt")
	runGit(t, dir, "commit", "-q", "-m", "first")
	require.NoError(t, writeFile(filepath.Join(dir, "b.txt"), "two\n"))
	runGit(t, dir, "add", "b.txt")
	runGit(t, dir, "commit", "-q", "-m", "second")
	return dir
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

func TestCommitStreamDrainsTwoCommitsIncrementally(t *testing.T) {
	repoDir := initRepoWithTwoCommits(t)
	markPath := filepath.Join(t.TempDir(), "marks")

	stream, err := exporter.Open(repoDir, markPath, 1)
	require.NoError(t, err)

	var marks []int64
	for {
		row, ok := stream.Next()
		if !ok {
			break
		}
		marks = append(marks, row.CommitMark)
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())
	require.Len(t, marks, 2)

	// Re-run against the same mark file: fast-export should report no
	// new commits since both were already exported and marked.
	stream2, err := exporter.Open(repoDir, markPath, 1)
	require.NoError(t, err)
	_, ok := stream2.Next()
	require.False(t, ok)
	require.NoError(t, stream2.Err())
	require.NoError(t, stream2.Close())
}
