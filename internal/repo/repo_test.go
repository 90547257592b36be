package repo

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelateLongestPrefix(t *testing.T) {
	got, ok := Correlate("/a/b/c", []string{"/a", "/a/b"})
	assert.True(t, ok)
	assert.Equal(t, "/a/b", got)

	got, ok = Correlate("/a/b/c", []string{"/a/b", "/a"})
	assert.True(t, ok)
	assert.Equal(t, "/a/b", got, "order of roots must not matter")
}

func TestCorrelateExactAndBoundaries(t *testing.T) {
	got, ok := Correlate("/src/app", []string{"/src/app"})
	assert.True(t, ok)
	assert.Equal(t, "/src/app", got)

	_, ok = Correlate("/src/application", []string{"/src/app"})
	assert.False(t, ok, "prefix must end at a path separator")

	got, ok = Correlate("/src/app/", []string{"/src/app/"})
	assert.True(t, ok)
	assert.Equal(t, "/src/app", got)

	got, ok = Correlate("/anything", []string{"/"})
	assert.True(t, ok)
	assert.Equal(t, "/", got)
}

func TestCorrelateNoMatch(t *testing.T) {
	_, ok := Correlate("/tmp", []string{"/a", ""})
	assert.False(t, ok)
	_, ok = Correlate("", []string{"/a"})
	assert.False(t, ok)
	_, ok = Correlate("/a", nil)
	assert.False(t, ok)
}

func TestStaticCopies(t *testing.T) {
	s := Static{"/a"}
	r := s.Roots()
	r[0] = "/b"
	assert.Equal(t, "/a", s[0])
}

func TestDirScan(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "one", ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "two"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "wt"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "wt", ".git"), []byte("gitdir: /x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "file.txt"), nil, 0o644))

	roots := DirScan{Dirs: []string{base, filepath.Join(base, "missing")}}.Roots()
	sort.Strings(roots)
	assert.Equal(t, []string{filepath.Join(base, "one"), filepath.Join(base, "wt")}, roots)
}

func TestMultiDeduplicates(t *testing.T) {
	m := Multi{Static{"/a", "/b/"}, nil, Static{"/b", "/c"}}
	assert.Equal(t, []string{"/a", "/b", "/c"}, m.Roots())
}
