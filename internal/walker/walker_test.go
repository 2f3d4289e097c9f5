package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestWalk_ClassifiesByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.ksh"), "#!/bin/ksh\n")
	writeFile(t, filepath.Join(root, "b.sh"), "#!/bin/sh\n")
	writeFile(t, filepath.Join(root, "loader.ctl"), "load data\n")
	writeFile(t, filepath.Join(root, "readme.txt"), "ignored\n")

	files, warnings, err := Walk(root, Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, files, 3)

	byKind := map[Kind]int{}
	for _, f := range files {
		byKind[f.Kind]++
	}
	assert.Equal(t, 2, byKind[KindScript])
	assert.Equal(t, 1, byKind[KindControlFile])
}

func TestWalk_SkipsHiddenDirsAndFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "hooks", "pre-commit.sh"), "echo hi\n")
	writeFile(t, filepath.Join(root, ".hidden.ksh"), "echo hi\n")
	writeFile(t, filepath.Join(root, "visible.ksh"), "echo hi\n")

	files, _, err := Walk(root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(root, "visible.ksh"), files[0].Path)
}

func TestWalk_FiltersByKind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.ksh"), "")
	writeFile(t, filepath.Join(root, "b.ctl"), "")

	files, _, err := Walk(root, Options{Kinds: []Kind{KindScript}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, KindScript, files[0].Kind)
}

func TestWalk_IgnoreGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.ksh"), "")
	writeFile(t, filepath.Join(root, "vendor", "skip.ksh"), "")

	files, _, err := Walk(root, Options{Ignore: []string{"vendor/**"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(root, "keep.ksh"), files[0].Path)
}

func TestWalk_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "z.ksh"), "")
	writeFile(t, filepath.Join(root, "a.ksh"), "")
	writeFile(t, filepath.Join(root, "m.ksh"), "")

	files, _, err := Walk(root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, files[0].Path < files[1].Path)
	assert.True(t, files[1].Path < files[2].Path)
}
