package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/sable/internal/uri"
)

const archive = `-- a.py --
from b import foo
foo()
-- b.py --
def foo(): pass
-- pkg/__init__.pyi --
x: int
-- pkg/notes.txt --
ignored
-- .hidden/c.py --
skipped
`

func TestFromTxtar(t *testing.T) {
	fsys, uris := FromTxtar([]byte(archive), "/proj")
	require.Len(t, uris, 5)
	assert.Equal(t, uri.URI("file:///proj/a.py"), uris[0])

	text, err := ReadFile(fsys, "file:///proj/b.py")
	require.NoError(t, err)
	assert.Equal(t, "def foo(): pass\n", text)

	assert.True(t, IsFile(fsys, "file:///proj/pkg/__init__.pyi"))
	assert.True(t, IsDir(fsys, "file:///proj/pkg"))
	assert.False(t, IsFile(fsys, "file:///proj/missing.py"))

	_, err = ReadFile(fsys, uri.Cell("nb", 1))
	assert.ErrorIs(t, err, ErrNotFile)
}

func TestWalk(t *testing.T) {
	fsys, _ := FromTxtar([]byte(archive), "/proj")
	files, err := Walk(fsys, []uri.URI{"file:///proj", "file:///proj/pkg"})
	require.NoError(t, err)
	assert.Equal(t, []uri.URI{
		"file:///proj/a.py",
		"file:///proj/b.py",
		"file:///proj/pkg/__init__.pyi",
	}, files)
}
