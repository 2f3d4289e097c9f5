package main

import (
	"context"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/depsaudit/scandex/internal/store"
)

func TestResolveDBPath_ExplicitFlagWins(t *testing.T) {
	dbPath = "/tmp/explicit.db"
	defer func() { dbPath = "" }()
	assert.Equal(t, "/tmp/explicit.db", resolveDBPath("/some/root"))
}

func TestResolveDBPath_DefaultsAlongsideRoot(t *testing.T) {
	dbPath = ""
	assert.Equal(t, "/scripts/scandex.db", resolveDBPath("/scripts"))
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 0, exitCodeFor(nil))
	assert.Equal(t, 2, exitCodeFor(usageError{errors.New("bad flag")}))
	assert.Equal(t, 5, exitCodeFor(store.ErrIncompatible))
	assert.Equal(t, 4, exitCodeFor(sqlite3.Error{}))
	assert.Equal(t, 130, exitCodeFor(context.Canceled))
	assert.Equal(t, 1, exitCodeFor(errors.New("boom")))
}

func TestParseTargetKind(t *testing.T) {
	kind, err := parseTargetKind("script")
	assert.NoError(t, err)
	assert.Equal(t, store.KindScript, kind)

	kind, err = parseTargetKind("control_file")
	assert.NoError(t, err)
	assert.Equal(t, store.KindControlFile, kind)

	_, err = parseTargetKind("bogus")
	assert.Error(t, err)
}
