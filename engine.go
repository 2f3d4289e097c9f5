package scandex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/depsaudit/scandex/internal/extract"
	"github.com/depsaudit/scandex/internal/lexfilter"
	"github.com/depsaudit/scandex/internal/resolve"
	"github.com/depsaudit/scandex/internal/store"
	"github.com/depsaudit/scandex/internal/walker"
)

// Fatal sentinel errors (§7): these abort a scan outright rather than being
// accumulated as ScanReport warnings. Checked with errors.Is throughout the
// CLI's exit-status mapping (§6).
var (
	// ErrStoreUnavailable wraps a failure to open or write the database
	// (e.g. disk full, permissions, lock contention exhausted after retry).
	ErrStoreUnavailable = errors.New("scandex: store unavailable")
	// ErrStoreIncompatible wraps store.ErrIncompatible: the database was
	// built by an incompatible schema version and must be rebuilt.
	ErrStoreIncompatible = errors.New("scandex: store schema incompatible")
	// ErrInputNotFound is returned when a scan root does not exist or is
	// not a directory.
	ErrInputNotFound = errors.New("scandex: input root not found")
)

// Engine orchestrates the scandex pipeline: discovery, lexical filtering,
// reference extraction, resolution, and persistence.
type Engine struct {
	store *store.Store

	ignore      []string
	prune       bool
	concurrency int
	sampleSize  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIgnore adds doublestar glob patterns (relative to a scan root) that
// the Walker should skip.
func WithIgnore(patterns ...string) Option {
	return func(e *Engine) { e.ignore = append(e.ignore, patterns...) }
}

// WithPrune makes Analyze remove scripts no longer present on disk instead
// of marking them stale (§3: "unless the caller requests a pruning scan").
func WithPrune(prune bool) Option {
	return func(e *Engine) { e.prune = prune }
}

// WithConcurrency bounds the number of worker goroutines used for the
// parallel lex/extract/resolve phase. Defaults to runtime.NumCPU().
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithWarningSample sets the maximum number of offending paths retained per
// error kind in a ScanReport (§7 default N=10).
func WithWarningSample(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sampleSize = n
		}
	}
}

// New creates an Engine backed by a SQLite database at dbPath, applying
// schema migrations idempotently.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		if errors.Is(err, store.ErrIncompatible) {
			return nil, fmt.Errorf("%w: %v", ErrStoreIncompatible, err)
		}
		return nil, fmt.Errorf("%w: migrate: %v", ErrStoreUnavailable, err)
	}

	e := &Engine{
		store:       s,
		concurrency: runtime.NumCPU(),
		sampleSize:  10,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// ErrorKind classifies a non-fatal condition accumulated on a ScanReport (§7).
type ErrorKind string

const (
	ErrInputUnreadable ErrorKind = "InputUnreadable"
	ErrParseAnomaly    ErrorKind = "ParseAnomaly"
)

// ScanReport summarizes one Analyze run: per-kind warning counts and a
// bounded sample of offending paths (§7 "the scan report enumerates counts
// per error kind, a sample of up to N offending paths per kind").
type ScanReport struct {
	RunID         string
	Started       time.Time
	Duration      time.Duration
	Status        string // "ok", "cancelled"
	Scripts       int
	ControlFiles  int
	Procedures    int
	EdgesByStatus map[store.Status]int

	WarningCounts map[ErrorKind]int
	WarningSample map[ErrorKind][]string
}

func newScanReport(runID string) *ScanReport {
	return &ScanReport{
		RunID:         runID,
		Started:       time.Now(),
		WarningCounts: make(map[ErrorKind]int),
		WarningSample: make(map[ErrorKind][]string),
	}
}

func (r *ScanReport) warn(sampleSize int, kind ErrorKind, path string) {
	r.WarningCounts[kind]++
	if len(r.WarningSample[kind]) < sampleSize {
		r.WarningSample[kind] = append(r.WarningSample[kind], path)
	}
}

// fileJob is one script queued for the parallel lex/extract/resolve phase.
type fileJob struct {
	scriptID int64
	path     string
	dir      string
}

// fileResult is what a worker hands back to the serial commit phase.
// cancelled is set instead of err when the worker observed ctx.Done() before
// (or instead of) reading the file, so phase C can tell a cancellation apart
// from a genuinely unreadable file (§5/§7).
type fileResult struct {
	job          fileJob
	refs         []resolve.Resolved
	unterminated bool
	err          error
	cancelled    bool
}

// Analyze performs a full scan of scriptRoot (for .ksh/.sh/.ctl discovery)
// and ctlRoot (for .ctl discovery; pass the same path as scriptRoot when
// control files live alongside scripts). It runs a three-phase pipeline:
// serial upsert of Script/ControlFile identity rows, parallel lexing and
// extraction, and a serial single-writer commit of resolved edges. The
// entire pipeline executes inside one store.Scan transaction (§4.1
// begin_scan/commit_scan/abort_scan): a failure anywhere, or cancellation of
// ctx, aborts the scan and leaves the prior indexed state untouched.
func (e *Engine) Analyze(ctx context.Context, scriptRoot, ctlRoot string) (*ScanReport, error) {
	runID := uuid.NewString()
	report := newScanReport(runID)

	if _, err := os.Stat(scriptRoot); err != nil {
		return report, fmt.Errorf("%w: %s: %v", ErrInputNotFound, scriptRoot, err)
	}
	discovered, warnings, err := walker.Walk(scriptRoot, walker.Options{Ignore: e.ignore})
	if err != nil {
		return report, fmt.Errorf("scandex: walk %s: %w", scriptRoot, err)
	}
	if ctlRoot != scriptRoot {
		if _, err := os.Stat(ctlRoot); err != nil {
			return report, fmt.Errorf("%w: %s: %v", ErrInputNotFound, ctlRoot, err)
		}
		ctlFiles, ctlWarnings, err := walker.Walk(ctlRoot, walker.Options{
			Kinds: []walker.Kind{walker.KindControlFile}, Ignore: e.ignore,
		})
		if err != nil {
			return report, fmt.Errorf("scandex: walk %s: %w", ctlRoot, err)
		}
		discovered = append(discovered, ctlFiles...)
		warnings = append(warnings, ctlWarnings...)
	}
	for _, w := range warnings {
		report.warn(e.sampleSize, ErrorKind(w.Kind), w.Path)
	}

	if err := ctx.Err(); err != nil {
		return cancelledReport(report), err
	}

	sc, err := e.store.BeginScan(runID)
	if err != nil {
		return report, fmt.Errorf("%w: begin scan: %v", ErrStoreUnavailable, err)
	}
	txStore := sc.Store()

	// Phase A (serial): upsert identity rows for every discovered file so
	// resolution (phase B) can look up any corpus member by path/basename,
	// including scripts that haven't been re-parsed yet. All writes go
	// through txStore, so nothing is visible outside the scan until Commit.
	var jobs []fileJob
	var keepPaths []string
	for _, f := range discovered {
		if err := ctx.Err(); err != nil {
			sc.Abort()
			return cancelledReport(report), err
		}
		keepPaths = append(keepPaths, f.Path)
		switch f.Kind {
		case walker.KindScript:
			content, err := os.ReadFile(f.Path)
			if err != nil {
				report.warn(e.sampleSize, ErrInputUnreadable, f.Path)
				continue
			}
			lang := "sh"
			if strings.HasSuffix(f.Path, ".ksh") {
				lang = "ksh"
			}
			lineCount := countLines(content)
			id, _, err := txStore.UpsertScript(&store.Script{
				Path: f.Path, Basename: path.Base(f.Path), Size: f.Size,
				ModTime: time.Unix(0, f.ModTime), LineCount: lineCount,
				Language: lang, LastScanned: time.Now(),
			})
			if err != nil {
				sc.Abort()
				return report, fmt.Errorf("%w: upsert script %s: %v", ErrStoreUnavailable, f.Path, err)
			}
			jobs = append(jobs, fileJob{scriptID: id, path: f.Path, dir: resolve.SourceDir(f.Path)})
		case walker.KindControlFile:
			if _, err := txStore.UpsertControlFile(&store.ControlFile{
				Path: f.Path, Basename: path.Base(f.Path), Size: f.Size,
			}); err != nil {
				sc.Abort()
				return report, fmt.Errorf("%w: upsert control file %s: %v", ErrStoreUnavailable, f.Path, err)
			}
		}
	}

	if e.prune {
		if err := e.prunedMissingScripts(txStore, keepPaths); err != nil {
			sc.Abort()
			return report, fmt.Errorf("%w: prune: %v", ErrStoreUnavailable, err)
		}
	} else if err := txStore.MarkScriptsStaleExcept(keepPaths); err != nil {
		sc.Abort()
		return report, fmt.Errorf("%w: mark stale: %v", ErrStoreUnavailable, err)
	}

	if len(jobs) == 0 {
		if err := sc.Commit(); err != nil {
			return report, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
		}
		return e.finishReport(report)
	}

	// Phase B (parallel): read, lex-classify, extract, and resolve each
	// script. Reads go through txStore (the scan's own transaction), so
	// phase A's upserts are visible here even though the scan hasn't
	// committed; workers never contend with each other or with phase C
	// since SQLite serializes all access to a single *sql.Tx connection.
	resultCh := make(chan fileResult, len(jobs))
	jobCh := make(chan fileJob, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	numWorkers := e.concurrency
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if ctx.Err() != nil {
					resultCh <- fileResult{job: job, cancelled: true}
					continue
				}
				refs, unterminated, err := e.processFile(txStore, job)
				resultCh <- fileResult{job: job, refs: refs, unterminated: unterminated, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Phase C (serial): procedure upserts and atomic per-script edge
	// replacement, funneled through the single Scan writer (§5). A
	// cancellation result or a commit failure aborts the whole scan; any
	// writes already made through txStore are discarded with it.
	var commitErr error
	for res := range resultCh {
		if res.cancelled {
			continue
		}
		if res.err != nil {
			report.warn(e.sampleSize, ErrInputUnreadable, res.job.path)
			continue
		}
		if res.unterminated {
			report.warn(e.sampleSize, ErrParseAnomaly, res.job.path)
		}
		if err := e.commitFile(txStore, res.job, res.refs); err != nil {
			commitErr = fmt.Errorf("%w: commit %s: %v", ErrStoreUnavailable, res.job.path, err)
			break
		}
	}

	if err := ctx.Err(); err != nil {
		sc.Abort()
		return cancelledReport(report), err
	}
	if commitErr != nil {
		sc.Abort()
		return report, commitErr
	}

	if err := sc.Commit(); err != nil {
		return report, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return e.finishReport(report)
}

func cancelledReport(report *ScanReport) *ScanReport {
	report.Status = "cancelled"
	report.Duration = time.Since(report.Started)
	return report
}

func (e *Engine) processFile(txStore *store.Store, job fileJob) (resolved []resolve.Resolved, unterminated bool, err error) {
	content, err := os.ReadFile(job.path)
	if err != nil {
		return nil, false, err
	}
	lines, unterminated := lexfilter.Filter(string(content))
	raws := extract.File(lines)

	scripts := storeScriptLookup{txStore}
	controlFiles := storeControlFileLookup{txStore}

	resolved = make([]resolve.Resolved, 0, len(raws))
	for _, r := range raws {
		if r.TargetKind == store.KindProcedure {
			resolved = append(resolved, resolve.Resolved{Raw: r, Status: store.StatusResolved})
			continue
		}
		resolved = append(resolved, resolve.One(r, job.dir, scripts, controlFiles))
	}
	return resolved, unterminated, nil
}

func (e *Engine) commitFile(txStore *store.Store, job fileJob, resolved []resolve.Resolved) error {
	edges := make([]*store.Reference, 0, len(resolved))
	for _, r := range resolved {
		ref := &store.Reference{
			SourceScriptID: job.scriptID,
			TargetKind:     r.Raw.TargetKind,
			Line:           r.Raw.Line,
			RawText:        r.Raw.RawText,
			WrittenPath:    r.Raw.WrittenPath,
			Basename:       r.Raw.Basename,
			Style:          r.Raw.Style,
			Background:     r.Raw.Background,
			Status:         r.Status,
			Inactive:       r.Raw.Inactive,
			Candidates:     r.Candidates,
		}
		if r.Raw.TargetKind == store.KindProcedure {
			id, err := txStore.UpsertProcedure(&store.Procedure{
				Qualified:      r.Raw.Qualified,
				QualifiedLower: r.Raw.QualifiedLower,
				SchemaPart:     r.Raw.SchemaPart,
				PackagePart:    r.Raw.PackagePart,
				NamePart:       r.Raw.NamePart,
			})
			if err != nil {
				return err
			}
			ref.TargetID = id
			ref.Status = store.StatusResolved
		} else {
			ref.TargetID = r.TargetID
		}
		edges = append(edges, ref)
	}

	return txStore.ReplaceEdgesOf(job.scriptID, edges)
}

func (e *Engine) prunedMissingScripts(txStore *store.Store, keepPaths []string) error {
	if err := txStore.MarkScriptsStaleExcept(keepPaths); err != nil {
		return err
	}
	all, err := txStore.IterAllScripts()
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(keepPaths))
	for _, p := range keepPaths {
		keep[p] = true
	}
	var stale []int64
	for _, sc := range all {
		if !keep[sc.Path] {
			stale = append(stale, sc.ID)
		}
	}
	return txStore.DeleteScripts(stale)
}

func (e *Engine) finishReport(report *ScanReport) (*ScanReport, error) {
	n, err := e.store.CountScripts()
	if err != nil {
		return report, err
	}
	report.Scripts = n
	if report.ControlFiles, err = e.store.CountControlFiles(); err != nil {
		return report, err
	}
	if report.Procedures, err = e.store.CountProcedures(); err != nil {
		return report, err
	}
	if report.EdgesByStatus, err = e.store.EdgeCountsByStatus(); err != nil {
		return report, err
	}
	report.Duration = time.Since(report.Started)
	report.Status = "ok"
	return report, nil
}

type storeScriptLookup struct{ s *store.Store }

func (l storeScriptLookup) ScriptByPath(p string) (*store.Script, error) { return l.s.ScriptByPath(p) }
func (l storeScriptLookup) ScriptsByBasename(b string) ([]*store.Script, error) {
	return l.s.ScriptsByBasename(b)
}

type storeControlFileLookup struct{ s *store.Store }

func (l storeControlFileLookup) ControlFileByPath(p string) (*store.ControlFile, error) {
	return l.s.ControlFileByPath(p)
}
func (l storeControlFileLookup) ControlFilesByBasename(b string) ([]*store.ControlFile, error) {
	return l.s.ControlFilesByBasename(b)
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 0
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
