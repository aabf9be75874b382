package directory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAliasFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aliases.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestAliasBookLoadAndResolve(t *testing.T) {
	path := writeAliasFile(t, "# comment\nbbs = KC3SMW-7\nNode1=W2ABC-1\n\n")

	book := NewAliasBook(path, 0, nil)
	require.NoError(t, book.Load())
	assert.Equal(t, 2, book.Count())

	call, ok := book.Resolve("BBS")
	assert.True(t, ok)
	assert.Equal(t, "KC3SMW-7", call)

	call, ok = book.Resolve("node1")
	assert.True(t, ok)
	assert.Equal(t, "W2ABC-1", call)

	_, ok = book.Resolve("missing")
	assert.False(t, ok)
}

func TestAliasBookLoadSkipsMalformedLines(t *testing.T) {
	path := writeAliasFile(t, "bbs=KC3SMW-7\nnotanalias\n")

	book := NewAliasBook(path, 0, nil)
	require.NoError(t, book.Load())
	assert.Equal(t, 1, book.Count())
}

func TestAliasBookLoadMissingFile(t *testing.T) {
	book := NewAliasBook(filepath.Join(t.TempDir(), "missing.txt"), 0, nil)
	assert.Error(t, book.Load())
}

func TestAliasBookBackgroundReload(t *testing.T) {
	path := writeAliasFile(t, "bbs=KC3SMW-7\n")

	book := NewAliasBook(path, 20*time.Millisecond, nil)
	require.NoError(t, book.Start())
	defer book.Stop()

	require.NoError(t, os.WriteFile(path, []byte("bbs=KC3SMW-7\nnode=W2ABC-1\n"), 0o644))

	require.Eventually(t, func() bool {
		return book.Count() == 2
	}, time.Second, 10*time.Millisecond)
}
