// Package walker discovers script and control-file candidates under one or
// more root directories.
package walker

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind classifies a discovered file.
type Kind string

const (
	KindScript      Kind = "script"
	KindControlFile Kind = "control_file"
)

// File describes one file found under a walked root.
type File struct {
	Path     string // absolute
	Kind     Kind
	Size     int64
	ModTime  int64 // unix nanos, avoids importing time into the hot path
	HasUTF8Replacement bool
}

// WarningKind mirrors the per-file error kinds a scan report accumulates.
type WarningKind string

const (
	WarnUnreadable      WarningKind = "InputUnreadable"
	WarnInvalidEncoding WarningKind = "InvalidEncoding"
)

// Warning is a non-fatal, per-file condition observed during a walk.
type Warning struct {
	Path string
	Kind WarningKind
	Err  error
}

// Options controls a single walk.
type Options struct {
	// Kinds restricts which file kinds are returned. Nil/empty means both.
	Kinds []Kind
	// Ignore holds doublestar glob patterns (relative to root) to exclude.
	Ignore []string
}

func languageExtensions() map[string]Kind {
	return map[string]Kind{
		".ksh": KindScript,
		".sh":  KindScript,
		".ctl": KindControlFile,
	}
}

// Walk performs a depth-first traversal of root, classifying files by
// extension (§4.2). Symbolic links are not followed. Hidden files and
// directories (basename beginning with ".") are skipped. Unreadable files
// are reported as warnings, not errors, and the walk continues.
func Walk(root string, opts Options) ([]File, []Warning, error) {
	kinds := opts.Kinds
	wantKind := func(k Kind) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, want := range kinds {
			if want == k {
				return true
			}
		}
		return false
	}

	exts := languageExtensions()
	var files []File
	var warnings []Warning

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return err
			}
			warnings = append(warnings, Warning{Path: path, Kind: WarnUnreadable, Err: err})
			return nil
		}

		name := d.Name()
		if name != "." && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if matchesIgnore(root, path, opts.Ignore) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matchesIgnore(root, path, opts.Ignore) {
			return nil
		}

		kind, ok := exts[strings.ToLower(filepath.Ext(name))]
		if !ok || !wantKind(kind) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			warnings = append(warnings, Warning{Path: path, Kind: WarnUnreadable, Err: statErr})
			return nil
		}

		f := File{Path: path, Kind: kind, Size: info.Size(), ModTime: info.ModTime().UnixNano()}
		if readable, hadReplacement, rerr := checkReadable(path); !readable {
			warnings = append(warnings, Warning{Path: path, Kind: WarnUnreadable, Err: rerr})
			return nil
		} else if hadReplacement {
			f.HasUTF8Replacement = true
			warnings = append(warnings, Warning{Path: path, Kind: WarnInvalidEncoding})
		}

		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, warnings, nil
}

// checkReadable opens and reads the file far enough to detect permission
// errors and invalid UTF-8 sequences, per §4.2: "non-readable files are
// reported as warnings and skipped" and "invalid sequences are replaced
// with the replacement character and a warning emitted — parsing proceeds."
func checkReadable(path string) (readable bool, hadReplacement bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, false, err
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 && !utf8.Valid(buf[:n]) {
			hadReplacement = true
		}
		if rerr != nil {
			break
		}
	}
	return true, hadReplacement, nil
}

func matchesIgnore(root, path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
