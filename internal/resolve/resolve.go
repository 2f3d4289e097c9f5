// Package resolve maps a raw reference's written path or basename to a
// concrete node already indexed in the store (§4.5).
package resolve

import (
	"path"
	"strings"

	"github.com/depsaudit/scandex/internal/extract"
	"github.com/depsaudit/scandex/internal/store"
)

// Resolved is a Raw reference augmented with its resolution outcome.
type Resolved struct {
	Raw        extract.Raw
	Status     store.Status
	TargetID   int64   // 0 when Status != resolved
	Candidates []int64 // populated when Status == ambiguous
}

// One resolves a single raw script or control-file reference against the
// indexed corpus, given the absolute directory of the referring script
// (used to normalize a relative written path without touching the
// filesystem). Procedure references are not resolved here: the Engine
// upserts them instead of looking them up, since a procedure's identity is
// its text.
func One(r extract.Raw, sourceDir string, scripts scriptLookup, controlFiles controlFileLookup) Resolved {
	if r.WrittenPath != "" {
		candidate := normalize(r.WrittenPath, sourceDir)
		if id, ok := byPath(r.TargetKind, candidate, scripts, controlFiles); ok {
			return Resolved{Raw: r, Status: store.StatusResolved, TargetID: id}
		}
		// §9 open question (b): an absolute written path outside the
		// corpus root is recorded unresolved rather than falling back to
		// a basename guess.
		if path.IsAbs(r.WrittenPath) {
			return Resolved{Raw: r, Status: store.StatusUnresolved}
		}
	}

	ids := byBasename(r.TargetKind, r.Basename, scripts, controlFiles)
	switch len(ids) {
	case 0:
		return Resolved{Raw: r, Status: store.StatusUnresolved}
	case 1:
		return Resolved{Raw: r, Status: store.StatusResolved, TargetID: ids[0]}
	default:
		return Resolved{Raw: r, Status: store.StatusAmbiguous, Candidates: ids}
	}
}

// normalize computes the lexical (no filesystem access) absolute form of a
// written path relative to the referring script's directory, per §4.5 step 2.
func normalize(writtenPath, sourceDir string) string {
	if path.IsAbs(writtenPath) {
		return path.Clean(writtenPath)
	}
	return path.Clean(path.Join(sourceDir, writtenPath))
}

type scriptLookup interface {
	ScriptByPath(p string) (*store.Script, error)
	ScriptsByBasename(basename string) ([]*store.Script, error)
}

type controlFileLookup interface {
	ControlFileByPath(p string) (*store.ControlFile, error)
	ControlFilesByBasename(basename string) ([]*store.ControlFile, error)
}

func byPath(kind store.TargetKind, p string, scripts scriptLookup, controlFiles controlFileLookup) (int64, bool) {
	switch kind {
	case store.KindScript:
		sc, err := scripts.ScriptByPath(p)
		if err != nil || sc == nil {
			return 0, false
		}
		return sc.ID, true
	case store.KindControlFile:
		cf, err := controlFiles.ControlFileByPath(p)
		if err != nil || cf == nil {
			return 0, false
		}
		return cf.ID, true
	default:
		return 0, false
	}
}

func byBasename(kind store.TargetKind, basename string, scripts scriptLookup, controlFiles controlFileLookup) []int64 {
	switch kind {
	case store.KindScript:
		matches, err := scripts.ScriptsByBasename(basename)
		if err != nil {
			return nil
		}
		ids := make([]int64, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return ids
	case store.KindControlFile:
		matches, err := controlFiles.ControlFilesByBasename(basename)
		if err != nil {
			return nil
		}
		ids := make([]int64, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return ids
	default:
		return nil
	}
}

// SourceDir returns the lexical directory of an absolute script path,
// suitable for passing to One/normalize.
func SourceDir(scriptPath string) string {
	return path.Dir(path.Clean(strings.ReplaceAll(scriptPath, "\\", "/")))
}
