package extract

import (
	"testing"

	"github.com/depsaudit/scandex/internal/lexfilter"
	"github.com/depsaudit/scandex/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, src string) []lexfilter.Line {
	t.Helper()
	lines, _ := lexfilter.Filter(src)
	return lines
}

// S1: sourced and direct-path invocations on separate lines.
func TestFile_S1_SourcedAndDirectPath(t *testing.T) {
	src := "#!/bin/ksh\necho start\n. ./config.ksh\necho middle\necho more\n./b.ksh\n"
	refs := File(classify(t, src))

	require.Len(t, refs, 2)
	assert.Equal(t, 3, refs[0].Line)
	assert.Equal(t, store.StyleSourced, refs[0].Style)
	assert.Equal(t, "config.ksh", refs[0].Basename)

	assert.Equal(t, 6, refs[1].Line)
	assert.Equal(t, store.StyleDirectPath, refs[1].Style)
	assert.Equal(t, "b.ksh", refs[1].Basename)
}

// S2: commented invocation produces zero active edges.
func TestFile_S2_CommentedInvocationProducesNoActiveRef(t *testing.T) {
	refs := File(classify(t, "# ./cleanup.ksh\n"))
	for _, r := range refs {
		assert.True(t, r.Inactive)
	}
}

// S3: procedure call embedded in a heredoc body; no script edge for the terminator.
func TestFile_S3_ProcedureCallInsideHeredoc(t *testing.T) {
	src := "sqlplus u/p <<EOF\n  select pkg.do_it() from dual;\nEOF\n"
	refs := File(classify(t, src))

	require.Len(t, refs, 1)
	assert.Equal(t, store.KindProcedure, refs[0].TargetKind)
	assert.Equal(t, "pkg.do_it", refs[0].Qualified)
	assert.Equal(t, "pkg", refs[0].PackagePart)
	assert.Equal(t, "do_it", refs[0].NamePart)
}

// S4: control-file reference.
func TestFile_S4_ControlFileReference(t *testing.T) {
	refs := File(classify(t, "sqlldr userid=u/p@s control=customer_data.ctl\n"))
	require.Len(t, refs, 1)
	assert.Equal(t, store.KindControlFile, refs[0].TargetKind)
	assert.Equal(t, "customer_data.ctl", refs[0].Basename)
}

// Direct path (style 2) outranks explicit interpreter (style 4): a
// path-bearing argument to an interpreter is recorded as the path match.
func TestFile_InterpreterWithPathArgumentIsDirectPath(t *testing.T) {
	refs := File(classify(t, "ksh ./nightly.ksh\n"))
	require.Len(t, refs, 1)
	assert.Equal(t, store.StyleDirectPath, refs[0].Style)
	assert.Equal(t, "nightly.ksh", refs[0].Basename)
}

// A bare (slash-free) script name after an interpreter has no direct-path
// or bare-name match to lose to, so it is still recorded StyleInterpreter.
func TestFile_ExplicitInterpreterBareName(t *testing.T) {
	refs := File(classify(t, "ksh nightly.ksh\n"))
	require.Len(t, refs, 1)
	assert.Equal(t, store.StyleInterpreter, refs[0].Style)
	assert.Equal(t, "nightly.ksh", refs[0].Basename)
}

func TestFile_BareNameBackground(t *testing.T) {
	refs := File(classify(t, "level4_script.ksh &\n"))
	require.Len(t, refs, 1)
	assert.Equal(t, store.StyleBareName, refs[0].Style)
	assert.True(t, refs[0].Background)
}

func TestFile_ThreeDotQualifiedProcedure(t *testing.T) {
	refs := File(classify(t, "select fin.customer_pkg.process_customers(p_id) from dual;\n"))
	require.Len(t, refs, 1)
	assert.Equal(t, "fin", refs[0].SchemaPart)
	assert.Equal(t, "customer_pkg", refs[0].PackagePart)
	assert.Equal(t, "process_customers", refs[0].NamePart)
}

func TestFile_SpanConsumption_OneInvocationOneRecord(t *testing.T) {
	// The direct-path pattern claims the script token first, so the
	// interpreter pattern's overlapping match on the same line is dropped.
	refs := File(classify(t, "ksh ./jobs/nightly.ksh\n"))
	require.Len(t, refs, 1)
}
