package scandex

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/depsaudit/scandex/internal/store"
)

// ExportDocument is the full corpus snapshot produced by Export (§4.8): every
// script, control file, procedure, and edge, in a stable order so repeated
// exports of an unchanged corpus are byte-identical.
type ExportDocument struct {
	Scripts      []ExportScript      `json:"scripts" yaml:"scripts"`
	ControlFiles []ExportControlFile `json:"control_files" yaml:"control_files"`
	Procedures   []ExportProcedure   `json:"procedures" yaml:"procedures"`
	Edges        []ExportEdge        `json:"edges" yaml:"edges"`
}

type ExportScript struct {
	Path      string `json:"path" yaml:"path"`
	Basename  string `json:"basename" yaml:"basename"`
	Language  string `json:"language" yaml:"language"`
	LineCount int    `json:"line_count" yaml:"line_count"`
	Stale     bool   `json:"stale" yaml:"stale"`
}

type ExportControlFile struct {
	Path     string `json:"path" yaml:"path"`
	Basename string `json:"basename" yaml:"basename"`
}

type ExportProcedure struct {
	Qualified  string `json:"qualified" yaml:"qualified"`
	SchemaPart string `json:"schema,omitempty" yaml:"schema,omitempty"`
	PackagePart string `json:"package,omitempty" yaml:"package,omitempty"`
	NamePart   string `json:"name" yaml:"name"`
}

type ExportEdge struct {
	SourcePath string   `json:"source_path" yaml:"source_path"`
	TargetKind string   `json:"target_kind" yaml:"target_kind"`
	TargetPath string   `json:"target_path,omitempty" yaml:"target_path,omitempty"`
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Line       int      `json:"line" yaml:"line"`
	Style      string   `json:"style" yaml:"style"`
	Status     string   `json:"status" yaml:"status"`
	Background bool     `json:"background,omitempty" yaml:"background,omitempty"`
	Inactive   bool     `json:"inactive,omitempty" yaml:"inactive,omitempty"`
}

// BuildExportDocument assembles the full corpus snapshot from the Store,
// sorting every section so the result is deterministic (§8 export stability).
func (q *QueryBuilder) BuildExportDocument() (*ExportDocument, error) {
	scripts, err := q.store.IterAllScripts()
	if err != nil {
		return nil, fmt.Errorf("scandex: export scripts: %w", err)
	}
	controlFiles, err := q.store.IterAllControlFiles()
	if err != nil {
		return nil, fmt.Errorf("scandex: export control files: %w", err)
	}

	doc := &ExportDocument{}
	scriptByID := make(map[int64]*store.Script, len(scripts))
	for _, sc := range scripts {
		scriptByID[sc.ID] = sc
		doc.Scripts = append(doc.Scripts, ExportScript{
			Path: sc.Path, Basename: sc.Basename, Language: sc.Language,
			LineCount: sc.LineCount, Stale: sc.Stale,
		})
	}
	for _, cf := range controlFiles {
		doc.ControlFiles = append(doc.ControlFiles, ExportControlFile{Path: cf.Path, Basename: cf.Basename})
	}

	seenProcedure := make(map[int64]bool)
	for _, sc := range scripts {
		edges, err := q.store.Outbound(sc.ID)
		if err != nil {
			return nil, fmt.Errorf("scandex: export edges for %s: %w", sc.Path, err)
		}
		for _, e := range edges {
			edge := ExportEdge{
				SourcePath: sc.Path, TargetKind: string(e.TargetKind), Line: e.Line,
				Style: string(e.Style), Status: string(e.Status), Background: e.Background, Inactive: e.Inactive,
			}
			switch e.Status {
			case store.StatusResolved:
				identity, err := q.targetIdentity(e.TargetKind, e.TargetID)
				if err != nil {
					return nil, err
				}
				edge.TargetPath = identity
				if e.TargetKind == store.KindProcedure && !seenProcedure[e.TargetID] {
					seenProcedure[e.TargetID] = true
					p, err := q.store.ProcedureByID(e.TargetID)
					if err != nil {
						return nil, err
					}
					if p != nil {
						doc.Procedures = append(doc.Procedures, ExportProcedure{
							Qualified: p.Qualified, SchemaPart: p.SchemaPart, PackagePart: p.PackagePart, NamePart: p.NamePart,
						})
					}
				}
			case store.StatusAmbiguous:
				for _, cand := range e.Candidates {
					identity, err := q.targetIdentity(e.TargetKind, cand)
					if err != nil {
						return nil, err
					}
					edge.Candidates = append(edge.Candidates, identity)
				}
				sort.Strings(edge.Candidates)
			}
			doc.Edges = append(doc.Edges, edge)
		}
	}

	sort.Slice(doc.Scripts, func(i, j int) bool { return doc.Scripts[i].Path < doc.Scripts[j].Path })
	sort.Slice(doc.ControlFiles, func(i, j int) bool { return doc.ControlFiles[i].Path < doc.ControlFiles[j].Path })
	sort.Slice(doc.Procedures, func(i, j int) bool { return doc.Procedures[i].Qualified < doc.Procedures[j].Qualified })
	sort.Slice(doc.Edges, func(i, j int) bool {
		a, b := doc.Edges[i], doc.Edges[j]
		if a.SourcePath != b.SourcePath {
			return a.SourcePath < b.SourcePath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Style < b.Style
	})

	return doc, nil
}

// ExportJSON writes the corpus snapshot to w as indented JSON.
func (q *QueryBuilder) ExportJSON(w io.Writer) error {
	doc, err := q.BuildExportDocument()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ExportYAML writes the corpus snapshot to w as YAML.
func (q *QueryBuilder) ExportYAML(w io.Writer) error {
	doc, err := q.BuildExportDocument()
	if err != nil {
		return err
	}
	return yaml.NewEncoder(w).Encode(doc)
}
