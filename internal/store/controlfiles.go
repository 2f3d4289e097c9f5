package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertControlFile inserts or updates a ControlFile by identity key (path).
func (s *Store) UpsertControlFile(cf *ControlFile) (int64, error) {
	existing, err := s.ControlFileByPath(cf.Path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.Size != cf.Size || existing.Basename != cf.Basename {
			if _, err := s.conn.Exec("UPDATE control_files SET basename=?, size=? WHERE id=?",
				cf.Basename, cf.Size, existing.ID); err != nil {
				return 0, fmt.Errorf("store: update control file %s: %w", cf.Path, err)
			}
		}
		return existing.ID, nil
	}

	res, err := s.conn.Exec("INSERT INTO control_files (path, basename, size) VALUES (?, ?, ?)",
		cf.Path, cf.Basename, cf.Size)
	if err != nil {
		return 0, fmt.Errorf("store: insert control file %s: %w", cf.Path, err)
	}
	return res.LastInsertId()
}

const controlFileCols = `id, path, basename, size`

func (s *Store) scanControlFile(row interface{ Scan(...any) error }) (*ControlFile, error) {
	cf := &ControlFile{}
	if err := row.Scan(&cf.ID, &cf.Path, &cf.Basename, &cf.Size); err != nil {
		return nil, err
	}
	return cf, nil
}

// ControlFileByPath looks up a ControlFile by absolute path.
func (s *Store) ControlFileByPath(path string) (*ControlFile, error) {
	row := s.conn.QueryRow("SELECT "+controlFileCols+" FROM control_files WHERE path = ?", path)
	cf, err := s.scanControlFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: control file by path: %w", err)
	}
	return cf, nil
}

// ControlFileByID looks up a ControlFile by its row id.
func (s *Store) ControlFileByID(id int64) (*ControlFile, error) {
	row := s.conn.QueryRow("SELECT "+controlFileCols+" FROM control_files WHERE id = ?", id)
	cf, err := s.scanControlFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: control file by id: %w", err)
	}
	return cf, nil
}

// ControlFilesByBasename returns all ControlFiles with the given basename, ordered by path.
func (s *Store) ControlFilesByBasename(basename string) ([]*ControlFile, error) {
	rows, err := s.conn.Query("SELECT "+controlFileCols+" FROM control_files WHERE basename = ? ORDER BY path", basename)
	if err != nil {
		return nil, fmt.Errorf("store: control files by basename: %w", err)
	}
	defer rows.Close()
	var out []*ControlFile
	for rows.Next() {
		cf, err := s.scanControlFile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan control file: %w", err)
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

// IterAllControlFiles returns every ControlFile, ordered by path.
func (s *Store) IterAllControlFiles() ([]*ControlFile, error) {
	rows, err := s.conn.Query("SELECT " + controlFileCols + " FROM control_files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("store: iter all control files: %w", err)
	}
	defer rows.Close()
	var out []*ControlFile
	for rows.Next() {
		cf, err := s.scanControlFile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan control file: %w", err)
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}
