package scandex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "scandex.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestAnalyze_S1_SourcedAndDirectPathEdges(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.ksh", "#!/bin/ksh\necho one\n. ./config.ksh\necho two\necho three\necho four\n./b.ksh\n")
	writeScript(t, root, "config.ksh", "#!/bin/ksh\n")
	writeScript(t, root, "b.ksh", "#!/bin/ksh\n")

	e := newTestEngine(t)
	report, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 3, report.Scripts)

	sc, err := e.Store().ScriptByPath(filepath.Join(root, "a.ksh"))
	require.NoError(t, err)
	forward, err := e.Store().Outbound(sc.ID)
	require.NoError(t, err)
	require.Len(t, forward, 2)
	assert.Equal(t, 3, forward[0].Line)
	assert.Equal(t, StyleSourced, forward[0].Style)
	assert.Equal(t, 7, forward[1].Line)
	assert.Equal(t, StyleDirectPath, forward[1].Style)
	for _, f := range forward {
		assert.Equal(t, StatusResolved, f.Status)
	}
}

func TestAnalyze_S5_AmbiguousBasenameCollision(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "caller.ksh", "level4_script.ksh\n")
	writeScript(t, root, "dir1/level4_script.ksh", "#!/bin/ksh\n")
	writeScript(t, root, "dir2/level4_script.ksh", "#!/bin/ksh\n")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	sc, err := e.Store().ScriptByPath(filepath.Join(root, "caller.ksh"))
	require.NoError(t, err)
	forward, err := e.Store().Outbound(sc.ID)
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, StatusAmbiguous, forward[0].Status)
	assert.Len(t, forward[0].Candidates, 2)
}

func TestAnalyze_S6_SearchProcedures(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "etl.ksh", `
sqlplus u/p <<EOF
select customer_pkg.process_customers() from dual;
select CRM_EXTRACT.get_customer_data() from dual;
select order_mgmt.validate_orders() from dual;
EOF
`)

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	results, err := e.Store().SearchProcedures("customer", 50, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestAnalyze_RescanReplacesEdges(t *testing.T) {
	root := t.TempDir()
	p := writeScript(t, root, "a.ksh", "./b.ksh\n")
	writeScript(t, root, "b.ksh", "")
	writeScript(t, root, "c.ksh", "")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("./c.ksh\n"), 0o644))
	_, err = e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	sc, err := e.Store().ScriptByPath(p)
	require.NoError(t, err)
	forward, err := e.Store().Outbound(sc.ID)
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, "c.ksh", forward[0].Basename)
}

func TestAnalyze_PruneRemovesDeletedScript(t *testing.T) {
	root := t.TempDir()
	p := writeScript(t, root, "gone.ksh", "")

	e := newTestEngine(t, WithPrune(true))
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(p))
	report, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scripts)
}

func TestAnalyze_MissingScriptRootIsErrInputNotFound(t *testing.T) {
	e := newTestEngine(t)
	root := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := e.Analyze(context.Background(), root, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputNotFound))
}

func TestNew_IncompatibleSchemaIsErrStoreIncompatible(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scandex.db")
	e, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, e.Store().SetMetadata("schema_version", "999999"))
	require.NoError(t, e.Close())

	_, err = New(dbPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreIncompatible))
}

func TestAnalyze_CancelledContextAbortsScan(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.ksh", "./b.ksh\n")
	writeScript(t, root, "b.ksh", "")

	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Analyze(ctx, root, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "cancelled", report.Status)

	sc, err := e.Store().ScriptByPath(filepath.Join(root, "a.ksh"))
	require.NoError(t, err)
	assert.Nil(t, sc)
}

func TestAnalyze_WithoutPruneMarksStaleNotDeleted(t *testing.T) {
	root := t.TempDir()
	p := writeScript(t, root, "kept.ksh", "")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(p))
	report, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scripts)

	sc, err := e.Store().ScriptByPath(p)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.True(t, sc.Stale)
}
