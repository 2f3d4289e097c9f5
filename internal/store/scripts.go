package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertScript inserts or updates a Script by identity key (absolute path).
// §3: "inserted on first scan; updated in place if identity key matches but
// size/mtime differ." Returns the assigned id and whether the row changed
// (false only when an existing row's size+mtime already matched).
func (s *Store) UpsertScript(sc *Script) (id int64, changed bool, err error) {
	existing, err := s.ScriptByPath(sc.Path)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		if existing.Size == sc.Size && existing.ModTime.Equal(sc.ModTime) && !existing.Stale {
			return existing.ID, false, nil
		}
		_, err := s.conn.Exec(
			`UPDATE scripts SET basename=?, size=?, mod_time=?, line_count=?, language=?,
			   stale=0, last_scanned=? WHERE id=?`,
			sc.Basename, sc.Size, sc.ModTime, sc.LineCount, sc.Language, sc.LastScanned, existing.ID,
		)
		if err != nil {
			return 0, false, fmt.Errorf("store: update script %s: %w", sc.Path, err)
		}
		return existing.ID, true, nil
	}

	res, err := s.conn.Exec(
		`INSERT INTO scripts (path, basename, size, mod_time, line_count, language, stale, last_scanned)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		sc.Path, sc.Basename, sc.Size, sc.ModTime, sc.LineCount, sc.Language, sc.LastScanned,
	)
	if err != nil {
		return 0, false, fmt.Errorf("store: insert script %s: %w", sc.Path, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("store: last insert id: %w", err)
	}
	return newID, true, nil
}

const scriptCols = `id, path, basename, size, mod_time, line_count, language, stale, last_scanned`

func (s *Store) scanScript(row interface{ Scan(...any) error }) (*Script, error) {
	sc := &Script{}
	if err := row.Scan(&sc.ID, &sc.Path, &sc.Basename, &sc.Size, &sc.ModTime,
		&sc.LineCount, &sc.Language, &sc.Stale, &sc.LastScanned); err != nil {
		return nil, err
	}
	return sc, nil
}

// ScriptByPath looks up a Script by its absolute path. Returns nil, nil if absent.
func (s *Store) ScriptByPath(path string) (*Script, error) {
	row := s.conn.QueryRow("SELECT "+scriptCols+" FROM scripts WHERE path = ?", path)
	sc, err := s.scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: script by path: %w", err)
	}
	return sc, nil
}

// ScriptByID looks up a Script by id. Returns nil, nil if absent.
func (s *Store) ScriptByID(id int64) (*Script, error) {
	row := s.conn.QueryRow("SELECT "+scriptCols+" FROM scripts WHERE id = ?", id)
	sc, err := s.scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: script by id: %w", err)
	}
	return sc, nil
}

// ScriptsByBasename returns all Scripts with the given basename, ordered by path.
func (s *Store) ScriptsByBasename(basename string) ([]*Script, error) {
	rows, err := s.conn.Query("SELECT "+scriptCols+" FROM scripts WHERE basename = ? ORDER BY path", basename)
	if err != nil {
		return nil, fmt.Errorf("store: scripts by basename: %w", err)
	}
	defer rows.Close()
	var out []*Script
	for rows.Next() {
		sc, err := s.scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan script: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// IterAllScripts returns every Script, ordered by path, for corpus-wide passes
// (index building, export, pruning).
func (s *Store) IterAllScripts() ([]*Script, error) {
	rows, err := s.conn.Query("SELECT " + scriptCols + " FROM scripts ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("store: iter all scripts: %w", err)
	}
	defer rows.Close()
	var out []*Script
	for rows.Next() {
		sc, err := s.scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan script: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// MarkScriptsStaleExcept flags as stale every Script whose path is not in
// keepPaths. Every scan calls it; a pruning scan (§3: "unless the caller
// requests a pruning scan") then removes those rows with DeleteScripts.
func (s *Store) MarkScriptsStaleExcept(keepPaths []string) error {
	all, err := s.IterAllScripts()
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(keepPaths))
	for _, p := range keepPaths {
		keep[p] = true
	}
	for _, sc := range all {
		if !keep[sc.Path] && !sc.Stale {
			if _, err := s.conn.Exec("UPDATE scripts SET stale=1 WHERE id=?", sc.ID); err != nil {
				return fmt.Errorf("store: mark stale %s: %w", sc.Path, err)
			}
		}
	}
	return nil
}

// DeleteScripts removes a batch of Scripts and all edges sourced from or
// targeting any of them, in one statement set per table. Used by pruning
// scans only; ordinary scans retain stale scripts (§3).
func (s *Store) DeleteScripts(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := placeholderList(len(ids))
	idArgs := int64sToArgs(ids)

	run := func(ex execer) error {
		candArgs := make([]any, 0, len(idArgs)*2+1)
		candArgs = append(candArgs, idArgs...)
		candArgs = append(candArgs, KindScript)
		candArgs = append(candArgs, idArgs...)
		if _, err := ex.Exec(
			"DELETE FROM edge_candidates WHERE edge_id IN (SELECT id FROM edges WHERE source_script_id IN ("+placeholders+") OR (target_kind=? AND target_id IN ("+placeholders+")))",
			candArgs...,
		); err != nil {
			return fmt.Errorf("store: delete scripts: candidates: %w", err)
		}

		edgeArgs := make([]any, 0, len(idArgs)*2+1)
		edgeArgs = append(edgeArgs, idArgs...)
		edgeArgs = append(edgeArgs, KindScript)
		edgeArgs = append(edgeArgs, idArgs...)
		if _, err := ex.Exec(
			"DELETE FROM edges WHERE source_script_id IN ("+placeholders+") OR (target_kind=? AND target_id IN ("+placeholders+"))",
			edgeArgs...,
		); err != nil {
			return fmt.Errorf("store: delete scripts: edges: %w", err)
		}

		if _, err := ex.Exec("DELETE FROM scripts WHERE id IN ("+placeholders+")", idArgs...); err != nil {
			return fmt.Errorf("store: delete scripts: rows: %w", err)
		}
		return nil
	}

	if tx, ok := s.conn.(*sql.Tx); ok {
		return run(tx)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: delete scripts: begin: %w", err)
	}
	defer tx.Rollback()
	if err := run(tx); err != nil {
		return err
	}
	return tx.Commit()
}
