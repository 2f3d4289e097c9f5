package scandex

import "github.com/depsaudit/scandex/internal/store"

// Public type aliases for internal store types used in the QueryBuilder API.
// These are Go type aliases (=) — identical to the internal types at compile
// time. External consumers use these names; no conversion is needed.

type Store = store.Store
type Script = store.Script
type ControlFile = store.ControlFile
type Procedure = store.Procedure
type Reference = store.Reference
type TargetKind = store.TargetKind
type Status = store.Status
type Style = store.Style

const (
	KindScript      = store.KindScript
	KindControlFile = store.KindControlFile
	KindProcedure   = store.KindProcedure
)

const (
	StatusResolved   = store.StatusResolved
	StatusUnresolved = store.StatusUnresolved
	StatusAmbiguous  = store.StatusAmbiguous
)

const (
	StyleProcedureCall = store.StyleProcedureCall
	StyleControlFile   = store.StyleControlFile
	StyleSourced       = store.StyleSourced
	StyleDirectPath    = store.StyleDirectPath
	StyleBareName      = store.StyleBareName
	StyleInterpreter   = store.StyleInterpreter
)
