package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"bushi.sh/bushi/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "bushi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDocumentParsesSiteAndRepos(t *testing.T) {
	dir := t.TempDir()
	repoDir := filepath.Join(dir, "acme")
	require.NoError(t, os.Mkdir(repoDir, 0o755))

	yamlPath := writeYAML(t, dir, `
name: example
description: an example install
path: `+dir+`
repo:
  - name: acme
    desc: acme widgets
    head: main
    path: `+repoDir+`
`)

	doc, err := config.LoadDocument(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "example", doc.Name)
	require.Len(t, doc.Repo, 1)
	assert.Equal(t, "acme", doc.Repo[0].Name)
	assert.Equal(t, int64(0), doc.Repo[0].RepoID)
}

func TestLoadDocumentMissingFileFails(t *testing.T) {
	_, err := config.LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
}

func TestDocumentCanonicalizeResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	repoDir := filepath.Join(dir, "acme")
	require.NoError(t, os.Mkdir(repoDir, 0o755))

	doc := &config.Document{
		Path: dir,
		Repo: []*config.RepoSpec{{Name: "acme", Path: repoDir}},
	}
	require.NoError(t, doc.Canonicalize())
	assert.True(t, filepath.IsAbs(doc.Path))
	assert.True(t, filepath.IsAbs(doc.Repo[0].Path))
}

func TestDocumentCanonicalizeFailsOnMissingPath(t *testing.T) {
	doc := &config.Document{Path: filepath.Join(t.TempDir(), "does-not-exist")}
	err := doc.Canonicalize()
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
}

func TestDocumentInitMarksCreatesOnlyMissing(t *testing.T) {
	dir := t.TempDir()
	doc := &config.Document{
		Path: dir,
		Repo: []*config.RepoSpec{{Name: "acme"}, {Name: "widgets"}},
	}

	created, err := doc.InitMarks()
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme"), []byte(":1 abc\n"), 0o644))

	created, err = doc.InitMarks()
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	contents, err := os.ReadFile(filepath.Join(dir, "acme"))
	require.NoError(t, err)
	assert.Equal(t, ":1 abc\n", string(contents))
}

func TestDocumentByName(t *testing.T) {
	doc := &config.Document{Repo: []*config.RepoSpec{{Name: "acme"}, {Name: "widgets"}}}
	byName := doc.ByName()
	assert.Len(t, byName, 2)
	assert.Equal(t, "acme", byName["acme"].Name)
}
