package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// render writes v to w in the requested format. text rendering delegates to
// a caller-supplied renderer since there is no generic human-readable shape
// for arbitrary query results.
func render(w io.Writer, format string, v any, textRender func(io.Writer, any) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return yaml.NewEncoder(w).Encode(v)
	case "text", "":
		return textRender(w, v)
	default:
		return newUsageError(nil, fmt.Errorf("unknown --format %q (want text, json, or yaml)", format))
	}
}

func printForwardText(w io.Writer, refs []forwardRow) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "(no outbound dependencies)")
		return
	}
	for _, r := range refs {
		target := r.TargetPath
		if target == "" && len(r.Candidates) > 0 {
			target = strings.Join(r.Candidates, ", ") + " (ambiguous)"
		}
		if target == "" {
			target = "(unresolved)"
		}
		fmt.Fprintf(w, "%5d  %-10s %-10s %s\n", r.Line, r.Style, r.Status, target)
	}
}

func printBackwardText(w io.Writer, refs []backwardRow) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "(no inbound dependencies)")
		return
	}
	for _, r := range refs {
		fmt.Fprintf(w, "%s  (%d reference%s)\n", r.SourcePath, len(r.Lines), plural(len(r.Lines)))
	}
}

func printSearchText(w io.Writer, hits []searchRow) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "(no matches)")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%-40s %s:%d\n", h.Qualified, h.SourcePath, h.Line)
	}
}

func printSummaryText(w io.Writer, s summaryRow) {
	fmt.Fprintf(w, "scripts:       %s\n", humanize.Comma(int64(s.ScriptCount)))
	fmt.Fprintf(w, "control files: %s\n", humanize.Comma(int64(s.ControlFileCount)))
	fmt.Fprintf(w, "procedures:    %s\n", humanize.Comma(int64(s.ProcedureCount)))
	for status, n := range s.EdgeCountByStatus {
		fmt.Fprintf(w, "  edges %-10s %s\n", status, humanize.Comma(int64(n)))
	}
}

func printAnalyzeText(w io.Writer, r analyzeRow) {
	fmt.Fprintf(w, "scan %s completed in %s\n", r.RunID, r.Duration)
	fmt.Fprintf(w, "scripts=%s control_files=%s procedures=%s\n",
		humanize.Comma(int64(r.Scripts)), humanize.Comma(int64(r.ControlFiles)), humanize.Comma(int64(r.Procedures)))
	for kind, n := range r.WarningCounts {
		fmt.Fprintf(w, "warning %-20s %s\n", kind, humanize.Comma(int64(n)))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
