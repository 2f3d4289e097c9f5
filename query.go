package scandex

import (
	"fmt"
	"sort"

	"github.com/depsaudit/scandex/internal/store"
)

// QueryBuilder provides the read-only query surface over the Store (§4.7).
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder creates a QueryBuilder from a Store directly. Used by
// CLI query commands that open a store without going through an Engine scan.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// ForwardRef is one outbound dependency of a script.
type ForwardRef struct {
	TargetKind TargetKind
	TargetPath string // best-effort human identity of the target; empty if unresolved/ambiguous
	Line       int
	Style      Style
	Status     Status
	Candidates []string
}

// ForwardDependencies returns the outbound edges of the script with the
// given basename, ordered by (line, style) (§4.7). If more than one script
// shares that basename, the caller should disambiguate via the basename
// collision itself surfaced as an error.
func (q *QueryBuilder) ForwardDependencies(scriptBasename string) ([]ForwardRef, error) {
	sc, err := q.uniqueScriptByBasename(scriptBasename)
	if err != nil {
		return nil, err
	}
	edges, err := q.store.Outbound(sc.ID)
	if err != nil {
		return nil, fmt.Errorf("scandex: forward dependencies: %w", err)
	}
	return q.toForwardRefs(edges)
}

func (q *QueryBuilder) toForwardRefs(edges []*store.Reference) ([]ForwardRef, error) {
	out := make([]ForwardRef, 0, len(edges))
	for _, e := range edges {
		ref := ForwardRef{TargetKind: e.TargetKind, Line: e.Line, Style: e.Style, Status: e.Status}
		if e.Status == store.StatusResolved {
			identity, err := q.targetIdentity(e.TargetKind, e.TargetID)
			if err != nil {
				return nil, err
			}
			ref.TargetPath = identity
		}
		if e.Status == store.StatusAmbiguous {
			for _, cand := range e.Candidates {
				identity, err := q.targetIdentity(e.TargetKind, cand)
				if err != nil {
					return nil, err
				}
				ref.Candidates = append(ref.Candidates, identity)
			}
		}
		out = append(out, ref)
	}
	return out, nil
}

func (q *QueryBuilder) targetIdentity(kind TargetKind, id int64) (string, error) {
	switch kind {
	case store.KindScript:
		sc, err := q.store.ScriptByID(id)
		if err != nil || sc == nil {
			return "", err
		}
		return sc.Path, nil
	case store.KindProcedure:
		p, err := q.store.ProcedureByID(id)
		if err != nil || p == nil {
			return "", err
		}
		return p.Qualified, nil
	case store.KindControlFile:
		cf, err := q.store.ControlFileByID(id)
		if err != nil || cf == nil {
			return "", err
		}
		return cf.Path, nil
	default:
		return "", nil
	}
}

// BackwardRef is one inbound dependency of a node, deduplicated by source
// script (§4.7: "deduplicated by source").
type BackwardRef struct {
	SourcePath string
	Lines      []int
	Styles     []Style
}

// BackwardDependencies returns the scripts that reference the node
// identified by (basename, kind), deduplicated by source script and
// ordered by source path (§4.7).
func (q *QueryBuilder) BackwardDependencies(basename string, kind TargetKind) ([]BackwardRef, error) {
	targetID, err := q.uniqueTargetID(basename, kind)
	if err != nil {
		return nil, err
	}

	edges, err := q.store.Inbound(targetID, kind)
	if err != nil {
		return nil, fmt.Errorf("scandex: backward dependencies: %w", err)
	}

	bySource := make(map[int64]*BackwardRef)
	var order []int64
	for _, e := range edges {
		ref, ok := bySource[e.SourceScriptID]
		if !ok {
			sc, err := q.store.ScriptByID(e.SourceScriptID)
			if err != nil {
				return nil, err
			}
			if sc == nil {
				continue
			}
			ref = &BackwardRef{SourcePath: sc.Path}
			bySource[e.SourceScriptID] = ref
			order = append(order, e.SourceScriptID)
		}
		ref.Lines = append(ref.Lines, e.Line)
		ref.Styles = append(ref.Styles, e.Style)
	}

	out := make([]BackwardRef, 0, len(order))
	for _, id := range order {
		out = append(out, *bySource[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out, nil
}

func (q *QueryBuilder) uniqueTargetID(basename string, kind TargetKind) (int64, error) {
	switch kind {
	case store.KindScript:
		sc, err := q.uniqueScriptByBasename(basename)
		if err != nil {
			return 0, err
		}
		return sc.ID, nil
	case store.KindControlFile:
		matches, err := q.store.ControlFilesByBasename(basename)
		if err != nil {
			return 0, err
		}
		if len(matches) == 0 {
			return 0, fmt.Errorf("scandex: control file %q not found", basename)
		}
		if len(matches) > 1 {
			return 0, fmt.Errorf("scandex: control file basename %q is ambiguous across the corpus", basename)
		}
		return matches[0].ID, nil
	default:
		return 0, fmt.Errorf("scandex: backward dependencies: unsupported target kind %q", kind)
	}
}

func (q *QueryBuilder) uniqueScriptByBasename(basename string) (*store.Script, error) {
	matches, err := q.store.ScriptsByBasename(basename)
	if err != nil {
		return nil, fmt.Errorf("scandex: lookup script %q: %w", basename, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("scandex: script %q not found", basename)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("scandex: script basename %q is ambiguous across the corpus", basename)
	}
	return matches[0], nil
}

// ProcedureHit is one result of a procedure-name search.
type ProcedureHit struct {
	Qualified  string
	SourcePath string
	Line       int
}

// SearchProcedures implements §4.7 search_procedures: substring,
// case-insensitive match, ordered by (procedure, source path, line).
func (q *QueryBuilder) SearchProcedures(needle string, limit, offset int) ([]ProcedureHit, error) {
	results, err := q.store.SearchProcedures(needle, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("scandex: search procedures: %w", err)
	}
	out := make([]ProcedureHit, 0, len(results))
	for _, r := range results {
		out = append(out, ProcedureHit{Qualified: r.Procedure.Qualified, SourcePath: r.SourceScript.Path, Line: r.Line})
	}
	return out, nil
}

// Summary is the corpus-wide count breakdown (§4.7 summary()).
type Summary struct {
	ScriptCount       int
	ControlFileCount  int
	ProcedureCount    int
	EdgeCountByKind   map[TargetKind]int
	EdgeCountByStatus map[Status]int
}

// Summary returns corpus-wide counts.
func (q *QueryBuilder) Summary() (*Summary, error) {
	s := &Summary{}
	var err error
	if s.ScriptCount, err = q.store.CountScripts(); err != nil {
		return nil, err
	}
	if s.ControlFileCount, err = q.store.CountControlFiles(); err != nil {
		return nil, err
	}
	if s.ProcedureCount, err = q.store.CountProcedures(); err != nil {
		return nil, err
	}
	if s.EdgeCountByKind, err = q.store.EdgeCountsByKind(); err != nil {
		return nil, err
	}
	if s.EdgeCountByStatus, err = q.store.EdgeCountsByStatus(); err != nil {
		return nil, err
	}
	return s, nil
}

// InactiveRef is a commented-out invocation surfaced by the optional debug
// query (§9 open question (a)).
type InactiveRef struct {
	Line  int
	Style Style
	Raw   string
}

// Inactive returns the commented-out invocations recorded for a script,
// ordered by line. This is the debug surface §9 permits but does not
// require the external viewer to display.
func (q *QueryBuilder) Inactive(scriptBasename string) ([]InactiveRef, error) {
	sc, err := q.uniqueScriptByBasename(scriptBasename)
	if err != nil {
		return nil, err
	}
	edges, err := q.store.OutboundIncludingInactive(sc.ID)
	if err != nil {
		return nil, fmt.Errorf("scandex: inactive references: %w", err)
	}
	var out []InactiveRef
	for _, e := range edges {
		if e.Inactive {
			out = append(out, InactiveRef{Line: e.Line, Style: e.Style, Raw: e.RawText})
		}
	}
	return out, nil
}
