package store

import (
	"database/sql"
	"fmt"
)

// ReplaceEdgesOf atomically deletes all existing outbound edges of
// sourceScriptID and inserts the supplied set (§4.1 replace_edges_of,
// §8 Testable Property 2: edge-replacement atomicity). Candidate ids for
// ambiguous edges are persisted in edge_candidates.
//
// When s is a Scan's tx-scoped view, the replacement runs directly against
// that transaction: the outer scan already provides atomicity, so no nested
// transaction is started (SQLite allows only one writer at a time, and a
// second Begin while the scan's transaction is open would block until the
// busy timeout). Called standalone (outside a scan), it brackets itself in
// its own transaction.
func (s *Store) ReplaceEdgesOf(sourceScriptID int64, edges []*Reference) error {
	run := func(ex execer) error {
		if _, err := ex.Exec(
			"DELETE FROM edge_candidates WHERE edge_id IN (SELECT id FROM edges WHERE source_script_id = ?)",
			sourceScriptID,
		); err != nil {
			return fmt.Errorf("store: replace edges: delete candidates: %w", err)
		}
		if _, err := ex.Exec("DELETE FROM edges WHERE source_script_id = ?", sourceScriptID); err != nil {
			return fmt.Errorf("store: replace edges: delete: %w", err)
		}

		for _, e := range edges {
			res, err := ex.Exec(
				`INSERT INTO edges (source_script_id, target_kind, target_id, line, raw_text,
					written_path, basename, style, background, status, inactive)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sourceScriptID, e.TargetKind, e.TargetID, e.Line, e.RawText,
				e.WrittenPath, e.Basename, e.Style, e.Background, e.Status, e.Inactive,
			)
			if err != nil {
				return fmt.Errorf("store: replace edges: insert: %w", err)
			}
			edgeID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("store: replace edges: last insert id: %w", err)
			}
			for _, cand := range e.Candidates {
				if _, err := ex.Exec("INSERT INTO edge_candidates (edge_id, candidate_id) VALUES (?, ?)", edgeID, cand); err != nil {
					return fmt.Errorf("store: replace edges: insert candidate: %w", err)
				}
			}
		}
		return nil
	}

	if tx, ok := s.conn.(*sql.Tx); ok {
		return run(tx)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: replace edges: begin: %w", err)
	}
	defer tx.Rollback()
	if err := run(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const edgeCols = `id, source_script_id, target_kind, target_id, line, raw_text, written_path, basename, style, background, status, inactive`

func (s *Store) scanEdge(row interface{ Scan(...any) error }) (*Reference, error) {
	e := &Reference{}
	if err := row.Scan(&e.ID, &e.SourceScriptID, &e.TargetKind, &e.TargetID, &e.Line, &e.RawText,
		&e.WrittenPath, &e.Basename, &e.Style, &e.Background, &e.Status, &e.Inactive); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) attachCandidates(edges []*Reference) error {
	for _, e := range edges {
		if e.Status != StatusAmbiguous {
			continue
		}
		rows, err := s.conn.Query("SELECT candidate_id FROM edge_candidates WHERE edge_id = ? ORDER BY candidate_id", e.ID)
		if err != nil {
			return fmt.Errorf("store: attach candidates: %w", err)
		}
		for rows.Next() {
			var cand int64
			if err := rows.Scan(&cand); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan candidate: %w", err)
			}
			e.Candidates = append(e.Candidates, cand)
		}
		rows.Close()
	}
	return nil
}

// Outbound returns the forward adjacency of a script: its outbound edges,
// ordered by (line, style) per §4.7 forward_dependencies. Inactive
// (commented) edges are excluded; use OutboundIncludingInactive for the
// debug surface from §9 open question (a).
func (s *Store) Outbound(sourceScriptID int64) ([]*Reference, error) {
	rows, err := s.conn.Query(
		"SELECT "+edgeCols+" FROM edges WHERE source_script_id = ? AND inactive = 0 ORDER BY line, style",
		sourceScriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: outbound: %w", err)
	}
	defer rows.Close()
	var out []*Reference
	for rows.Next() {
		e, err := s.scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachCandidates(out); err != nil {
		return nil, err
	}
	return out, nil
}

// OutboundIncludingInactive returns all outbound edges of a script, including
// commented-out invocations recorded with Inactive=true.
func (s *Store) OutboundIncludingInactive(sourceScriptID int64) ([]*Reference, error) {
	rows, err := s.conn.Query(
		"SELECT "+edgeCols+" FROM edges WHERE source_script_id = ? ORDER BY line, style",
		sourceScriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: outbound including inactive: %w", err)
	}
	defer rows.Close()
	var out []*Reference
	for rows.Next() {
		e, err := s.scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachCandidates(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Inbound returns the backward adjacency of a target node: edges whose
// target is (targetID, kind), per §4.7 backward_dependencies. Results are
// ordered by source script id and are not deduplicated.
func (s *Store) Inbound(targetID int64, kind TargetKind) ([]*Reference, error) {
	rows, err := s.conn.Query(
		`SELECT `+edgeCols+` FROM edges e
		 WHERE e.target_kind = ? AND e.target_id = ? AND e.inactive = 0
		 ORDER BY e.source_script_id`,
		kind, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: inbound: %w", err)
	}
	defer rows.Close()

	var out []*Reference
	seen := make(map[int64]bool)
	for rows.Next() {
		e, err := s.scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan edge: %w", err)
		}
		out = append(out, e)
		seen[e.SourceScriptID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sorting by source script path and dedup by source script are handled
	// by the caller (Query API), which also needs the full edge list to
	// report line/style per source.
	return out, nil
}

// EdgeCountsByKind returns the number of non-inactive edges grouped by target kind,
// for §4.7 summary().
func (s *Store) EdgeCountsByKind() (map[TargetKind]int, error) {
	rows, err := s.conn.Query("SELECT target_kind, COUNT(*) FROM edges WHERE inactive = 0 GROUP BY target_kind")
	if err != nil {
		return nil, fmt.Errorf("store: edge counts by kind: %w", err)
	}
	defer rows.Close()
	out := make(map[TargetKind]int)
	for rows.Next() {
		var kind TargetKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("store: scan edge count: %w", err)
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// EdgeCountsByStatus returns the number of non-inactive edges grouped by
// resolution status.
func (s *Store) EdgeCountsByStatus() (map[Status]int, error) {
	rows, err := s.conn.Query("SELECT status, COUNT(*) FROM edges WHERE inactive = 0 GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("store: edge counts by status: %w", err)
	}
	defer rows.Close()
	out := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store: scan edge count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountScripts, CountControlFiles, CountProcedures back §4.7 summary().
func (s *Store) CountScripts() (int, error)      { return s.countRows("scripts") }
func (s *Store) CountControlFiles() (int, error) { return s.countRows("control_files") }
func (s *Store) CountProcedures() (int, error)   { return s.countRows("procedures") }

func (s *Store) countRows(table string) (int, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return n, nil
}
