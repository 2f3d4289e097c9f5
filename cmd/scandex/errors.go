package main

import (
	"context"
	"errors"
	"os"

	"github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	scandex "github.com/depsaudit/scandex"
	"github.com/depsaudit/scandex/internal/store"
)

// usageError marks a command-line misuse (missing/invalid arguments) so
// exitCodeFor maps it to status 2 rather than the generic failure status.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func newUsageError(cmd *cobra.Command, err error) error {
	return usageError{err: err}
}

func isUsageError(err error) bool {
	var u usageError
	return errors.As(err, &u)
}

func isInputError(err error) bool {
	return errors.Is(err, scandex.ErrInputNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission)
}

func isStoreIncompatible(err error) bool {
	return errors.Is(err, scandex.ErrStoreIncompatible) || errors.Is(err, store.ErrIncompatible)
}

func isStoreError(err error) bool {
	if errors.Is(err, scandex.ErrStoreUnavailable) {
		return true
	}
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr)
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
