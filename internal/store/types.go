package store

import "time"

// TargetKind identifies the kind of node a Reference edge points to.
type TargetKind string

const (
	KindScript      TargetKind = "script"
	KindControlFile TargetKind = "control_file"
	KindProcedure   TargetKind = "procedure"
)

// Status is the resolution status of a Reference edge.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
	StatusAmbiguous  Status = "ambiguous"
)

// Style records which §4.4-C pattern produced a script-invocation edge.
// Procedure and control-file edges use StyleProcedureCall / StyleControlFile.
type Style string

const (
	StyleProcedureCall Style = "ProcedureCall"
	StyleControlFile   Style = "ControlFile"
	StyleSourced       Style = "Sourced"
	StyleDirectPath    Style = "DirectPath"
	StyleBareName      Style = "BareName"
	StyleInterpreter   Style = "Interpreter"
)

// Script is a discovered .ksh/.sh source file.
type Script struct {
	ID          int64
	Path        string // absolute path, identity key
	Basename    string
	Size        int64
	ModTime     time.Time
	LineCount   int
	Language    string // "ksh" | "sh"
	Stale       bool
	LastScanned time.Time
}

// ControlFile is a discovered .ctl bulk-loader control file.
type ControlFile struct {
	ID       int64
	Path     string // absolute path, identity key
	Basename string
	Size     int64
}

// Procedure is a named callable invoked via "select x.y.z(...) from dual".
type Procedure struct {
	ID             int64
	Qualified      string // original case, identity key
	QualifiedLower string
	SchemaPart     string
	PackagePart    string
	NamePart       string
}

// Reference is a directed edge from a Script to a Script, ControlFile, or
// Procedure. Immutable once written: a rescan deletes and re-inserts all
// edges of a given source script.
type Reference struct {
	ID             int64
	SourceScriptID int64
	TargetKind     TargetKind
	TargetID       int64 // 0 when unresolved or ambiguous
	Line           int
	RawText        string
	WrittenPath    string // path as written in source, for diagnostics
	Basename       string // basename as written, for resolution/display
	Style          Style
	Background     bool
	Status         Status
	Inactive       bool // commented-out invocation, surfaced for debugging only

	// Candidates holds target ids when Status == StatusAmbiguous.
	Candidates []int64
}
