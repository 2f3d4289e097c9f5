// Package scandex provides static dependency analysis for shell-script
// codebases that mix ksh/sh orchestration with embedded database calls and
// bulk-loader control files.
//
// # Pipeline
//
// scandex operates in five stages, run per file and then merged into the
// persistent graph:
//
//  1. Walk: discover .ksh/.sh scripts and .ctl control files under one or
//     two root directories.
//  2. Classify: the lexical filter separates active code from comments and
//     heredoc bodies.
//  3. Extract: an ordered family of patterns turns active text into raw
//     script-invocation, control-file, and stored-procedure references.
//  4. Resolve: each raw reference is matched against the indexed corpus by
//     path or basename, recording resolved/unresolved/ambiguous status.
//  5. Commit: the Engine replaces a script's outbound edges atomically and
//     persists everything in an embedded SQLite store.
//
// # Usage
//
// Create an Engine, run a scan, and query the graph:
//
//	e, err := scandex.New("scandex.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.Analyze(context.Background(), "/corpus/scripts", "/corpus/ctl")
//
//	q := e.Query()
//	forward, err := q.ForwardDependencies("nightly.ksh")
//	backward, err := q.BackwardDependencies("config.ksh", scandex.KindScript)
//	hits, err := q.SearchProcedures("customer", 50, 0)
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] implements the four
// operations a consumer needs to audit a legacy script estate:
//
//   - [QueryBuilder.ForwardDependencies] — what does this script call?
//   - [QueryBuilder.BackwardDependencies] — what calls this node?
//   - [QueryBuilder.SearchProcedures] — substring search over stored-procedure names.
//   - [QueryBuilder.Summary] — corpus-wide counts.
//
// # Incremental scans
//
// [Engine.Analyze] re-reads and re-parses every discovered script on each
// run and replaces its outbound edges; a script whose size and modification
// time are unchanged keeps its stored row, but is not skipped. A pruning scan ([WithPrune]) additionally removes scripts no longer present
// on disk; an ordinary scan instead marks them stale and retains their
// historical edges.
package scandex
