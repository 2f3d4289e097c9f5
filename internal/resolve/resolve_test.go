package resolve

import (
	"testing"

	"github.com/depsaudit/scandex/internal/extract"
	"github.com/depsaudit/scandex/internal/store"
	"github.com/stretchr/testify/assert"
)

type fakeScripts struct {
	byPath     map[string]*store.Script
	byBasename map[string][]*store.Script
}

func (f *fakeScripts) ScriptByPath(p string) (*store.Script, error) { return f.byPath[p], nil }
func (f *fakeScripts) ScriptsByBasename(basename string) ([]*store.Script, error) {
	return f.byBasename[basename], nil
}

type fakeControlFiles struct {
	byPath     map[string]*store.ControlFile
	byBasename map[string][]*store.ControlFile
}

func (f *fakeControlFiles) ControlFileByPath(p string) (*store.ControlFile, error) {
	return f.byPath[p], nil
}
func (f *fakeControlFiles) ControlFilesByBasename(basename string) ([]*store.ControlFile, error) {
	return f.byBasename[basename], nil
}

func TestOne_ResolvesByNormalizedRelativePath(t *testing.T) {
	scripts := &fakeScripts{
		byPath: map[string]*store.Script{
			"/corpus/jobs/config.ksh": {ID: 42, Path: "/corpus/jobs/config.ksh"},
		},
	}
	r := extract.Raw{TargetKind: store.KindScript, WrittenPath: "./config.ksh", Basename: "config.ksh"}

	got := One(r, "/corpus/jobs", scripts, &fakeControlFiles{})
	assert.Equal(t, store.StatusResolved, got.Status)
	assert.EqualValues(t, 42, got.TargetID)
}

func TestOne_FallsBackToBasenameWhenNoWrittenPath(t *testing.T) {
	scripts := &fakeScripts{
		byBasename: map[string][]*store.Script{
			"b.ksh": {{ID: 7, Path: "/corpus/b.ksh"}},
		},
	}
	r := extract.Raw{TargetKind: store.KindScript, Basename: "b.ksh"}

	got := One(r, "/corpus", scripts, &fakeControlFiles{})
	assert.Equal(t, store.StatusResolved, got.Status)
	assert.EqualValues(t, 7, got.TargetID)
}

func TestOne_Unresolved(t *testing.T) {
	r := extract.Raw{TargetKind: store.KindScript, Basename: "missing.ksh"}
	got := One(r, "/corpus", &fakeScripts{}, &fakeControlFiles{})
	assert.Equal(t, store.StatusUnresolved, got.Status)
}

// S5: basename collision resolves to ambiguous with both candidates.
func TestOne_S5_AmbiguousBasenameCollision(t *testing.T) {
	scripts := &fakeScripts{
		byBasename: map[string][]*store.Script{
			"level4_script.ksh": {
				{ID: 10, Path: "/corpus/a/level4_script.ksh"},
				{ID: 11, Path: "/corpus/b/level4_script.ksh"},
			},
		},
	}
	r := extract.Raw{TargetKind: store.KindScript, Basename: "level4_script.ksh"}

	got := One(r, "/corpus", scripts, &fakeControlFiles{})
	assert.Equal(t, store.StatusAmbiguous, got.Status)
	assert.ElementsMatch(t, []int64{10, 11}, got.Candidates)
}

func TestOne_AbsoluteWrittenPathOutsideCorpusUnresolved(t *testing.T) {
	// §9 open question (b): absolute path outside the corpus root is
	// recorded unresolved, not guessed at via basename.
	r := extract.Raw{TargetKind: store.KindScript, WrittenPath: "/opt/other/tool.ksh", Basename: "tool.ksh"}
	got := One(r, "/corpus", &fakeScripts{}, &fakeControlFiles{})
	assert.Equal(t, store.StatusUnresolved, got.Status)
}

func TestSourceDir(t *testing.T) {
	assert.Equal(t, "/corpus/jobs", SourceDir("/corpus/jobs/run.ksh"))
}
