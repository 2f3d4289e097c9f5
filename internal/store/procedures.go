package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertProcedure inserts a Procedure by identity key (qualified text), or
// returns the existing row's id. §3: "Two call sites with identical
// qualified text share one Procedure row."
func (s *Store) UpsertProcedure(p *Procedure) (int64, error) {
	existing, err := s.ProcedureByQualified(p.Qualified)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	res, err := s.conn.Exec(
		`INSERT INTO procedures (qualified, qualified_lower, schema_part, package_part, name_part)
		 VALUES (?, ?, ?, ?, ?)`,
		p.Qualified, p.QualifiedLower, p.SchemaPart, p.PackagePart, p.NamePart,
	)
	if err != nil {
		// Race with another writer upserting the same procedure concurrently;
		// fall back to a lookup since the constraint guarantees one winner.
		if existing, lookupErr := s.ProcedureByQualified(p.Qualified); lookupErr == nil && existing != nil {
			return existing.ID, nil
		}
		return 0, fmt.Errorf("store: insert procedure %s: %w", p.Qualified, err)
	}
	return res.LastInsertId()
}

const procedureCols = `id, qualified, qualified_lower, schema_part, package_part, name_part`

func (s *Store) scanProcedure(row interface{ Scan(...any) error }) (*Procedure, error) {
	p := &Procedure{}
	if err := row.Scan(&p.ID, &p.Qualified, &p.QualifiedLower, &p.SchemaPart, &p.PackagePart, &p.NamePart); err != nil {
		return nil, err
	}
	return p, nil
}

// ProcedureByQualified looks up a Procedure by its exact qualified text.
func (s *Store) ProcedureByQualified(qualified string) (*Procedure, error) {
	row := s.conn.QueryRow("SELECT "+procedureCols+" FROM procedures WHERE qualified = ?", qualified)
	p, err := s.scanProcedure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: procedure by qualified: %w", err)
	}
	return p, nil
}

// ProcedureByID looks up a Procedure by id.
func (s *Store) ProcedureByID(id int64) (*Procedure, error) {
	row := s.conn.QueryRow("SELECT "+procedureCols+" FROM procedures WHERE id = ?", id)
	p, err := s.scanProcedure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: procedure by id: %w", err)
	}
	return p, nil
}

// SearchProcedureResult pairs a matching Procedure with the edges that call it,
// the shape §4.7 search_procedures needs (procedure, source script, line).
type SearchProcedureResult struct {
	Procedure    *Procedure
	SourceScript *Script
	Line         int
}

// SearchProcedures implements §4.7 search_procedures: substring, case-insensitive
// match against the lowercased qualified form, ordered by (procedure, source
// path, line). Empty (post-trim) needle returns no results, per spec.
func (s *Store) SearchProcedures(needle string, limit, offset int) ([]SearchProcedureResult, error) {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return nil, nil
	}
	rows, err := s.conn.Query(
		`SELECT p.id, p.qualified, p.qualified_lower, p.schema_part, p.package_part, p.name_part,
		        sc.id, sc.path, sc.basename, sc.size, sc.mod_time, sc.line_count, sc.language, sc.stale, sc.last_scanned,
		        e.line
		 FROM edges e
		 JOIN procedures p ON p.id = e.target_id AND e.target_kind = ?
		 JOIN scripts sc ON sc.id = e.source_script_id
		 WHERE p.qualified_lower LIKE ? AND e.inactive = 0
		 ORDER BY p.qualified, sc.path, e.line
		 LIMIT ? OFFSET ?`,
		KindProcedure, "%"+needle+"%", limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search procedures: %w", err)
	}
	defer rows.Close()

	var out []SearchProcedureResult
	for rows.Next() {
		p := &Procedure{}
		sc := &Script{}
		var line int
		if err := rows.Scan(
			&p.ID, &p.Qualified, &p.QualifiedLower, &p.SchemaPart, &p.PackagePart, &p.NamePart,
			&sc.ID, &sc.Path, &sc.Basename, &sc.Size, &sc.ModTime, &sc.LineCount, &sc.Language, &sc.Stale, &sc.LastScanned,
			&line,
		); err != nil {
			return nil, fmt.Errorf("store: scan search result: %w", err)
		}
		out = append(out, SearchProcedureResult{Procedure: p, SourceScript: sc, Line: line})
	}
	return out, rows.Err()
}
