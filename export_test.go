package scandex

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExport_S1_DeterministicAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.ksh", "#!/bin/ksh\necho one\n. ./config.ksh\n./b.ksh\n")
	writeScript(t, root, "config.ksh", "#!/bin/ksh\n")
	writeScript(t, root, "b.ksh", "#!/bin/ksh\n")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	q := e.Query()
	first, err := q.BuildExportDocument()
	require.NoError(t, err)
	second, err := q.BuildExportDocument()
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("export document not stable across calls (-first +second):\n%s", diff)
	}
}

func TestExport_RescanProducesIdenticalDocument(t *testing.T) {
	root := t.TempDir()
	p := writeScript(t, root, "a.ksh", "./b.ksh\n")
	writeScript(t, root, "b.ksh", "")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)
	before, err := e.Query().BuildExportDocument()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("./b.ksh\n"), 0o644))
	_, err = e.Analyze(context.Background(), root, root)
	require.NoError(t, err)
	after, err := e.Query().BuildExportDocument()
	require.NoError(t, err)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("rescan of unchanged corpus produced a different export (-before +after):\n%s", diff)
	}
}

func TestExport_JSONRoundTripsExpectedShape(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.ksh", "./b.ksh\n")
	writeScript(t, root, "b.ksh", "")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.Query().ExportJSON(&buf))

	var doc ExportDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Scripts, 2)
	require.Len(t, doc.Edges, 1)
	require.Equal(t, "resolved", doc.Edges[0].Status)
}
