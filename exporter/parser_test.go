package exporter

import (
	"strings"
	"testing"

	"bushi.sh/bushi/core/oid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserYieldsCommitWithFiles(t *testing.T) {
	record := "commit refs/heads/main\n" +
		"mark :1\n" +
		"original-oid " + strings.Repeat("a", 40) + "\n" +
		"author A <a@example.com> 0 +0000\n" +
		"committer A <a@example.com> 0 +0000\n" +
		"data 6\n" +
		"hello\n" +
		"M 100644 " + strings.Repeat("b", 40) + " a.go\n" +
		"M 100644 " + strings.Repeat("c", 40) + " dir/b go.go\n" +
		"\n"

	s := newFromReader(strings.NewReader(record), 7)
	row, ok := s.Next()
	require.True(t, ok)
	require.NoError(t, s.Err())

	assert.Equal(t, int64(7), row.RepoID)
	assert.Equal(t, int64(1), row.CommitMark)
	assert.Equal(t, int64(0), row.ParentMark)
	assert.Equal(t, strings.Repeat("a", 40), row.CommitHash.String())
	assert.Equal(t, []string{"a.go", "dir/b go.go"}, row.Files)

	_, ok = s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}

func TestParserSkipsDataPayloadByteExactWithOverflow(t *testing.T) {
	// The commit message payload is "hello" (5 bytes, no embedded
	// newline of its own), and the physical chunk bufio reads up to the
	// next '\n' also contains the start of the next real token (an "M"
	// line) with no separating newline in between. The parser must
	// consume exactly 5 payload bytes and reinterpret the remainder of
	// that same chunk as the "M" token line.
	payload := "hello"
	require.Equal(t, 5, len(payload))

	record := "commit refs/heads/main\n" +
		"mark :2\n" +
		"original-oid " + strings.Repeat("d", 40) + "\n" +
		"from :1\n" +
		"data 5\n" +
		payload + "M 100644 " + strings.Repeat("b", 40) + " a.go\n" +
		"\n"

	s := newFromReader(strings.NewReader(record), 1)
	row, ok := s.Next()
	require.True(t, ok)
	require.NoError(t, s.Err())
	assert.Equal(t, int64(2), row.CommitMark)
	assert.Equal(t, int64(1), row.ParentMark)
	assert.Equal(t, []string{"a.go"}, row.Files)
}

func TestParserSkipsNonCommitRecords(t *testing.T) {
	record := "tag refs/tags/v1\n" +
		"mark :5\n" +
		"from :3\n" +
		"\n" +
		"commit refs/heads/main\n" +
		"mark :4\n" +
		"original-oid " + strings.Repeat("e", 40) + "\n" +
		"\n"

	s := newFromReader(strings.NewReader(record), 1)
	row, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, int64(4), row.CommitMark)

	_, ok = s.Next()
	assert.False(t, ok)
}

func TestParserMalformedLineTerminatesStream(t *testing.T) {
	record := "commit refs/heads/main\n" +
		"thisHasNoSeparatorSpace\n" +
		"\n"

	s := newFromReader(strings.NewReader(record), 1)
	_, ok := s.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), ErrExporterMalformed)
}

func TestParserSurfacesBadHashForMalformedOriginalOid(t *testing.T) {
	record := "commit refs/heads/main\n" +
		"mark :1\n" +
		"original-oid not-a-real-hash\n" +
		"\n"

	s := newFromReader(strings.NewReader(record), 1)
	_, ok := s.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), ErrExporterMalformed)
	assert.ErrorIs(t, s.Err(), oid.ErrBadHash)
}

func TestParserEndOfStreamWithoutTrailingNewline(t *testing.T) {
	record := "commit refs/heads/main\n" +
		"mark :1\n" +
		"original-oid " + strings.Repeat("f", 40) + "\n" +
		"\n" +
		"commit refs/heads/next\n" +
		"mark :2\n" +
		"original-oid " + strings.Repeat("f", 40)
	// no trailing blank line at all: stream just ends after a partial record

	s := newFromReader(strings.NewReader(record), 1)
	row, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, int64(1), row.CommitMark)

	_, ok = s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}
