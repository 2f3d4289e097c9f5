package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/depsaudit/scandex/internal/store"

	scandex "github.com/depsaudit/scandex"
)

type analyzeRow struct {
	RunID         string
	Started       time.Time
	Duration      time.Duration
	Scripts       int
	ControlFiles  int
	Procedures    int
	WarningCounts map[scandex.ErrorKind]int
}

func analyzeCmd() *cobra.Command {
	var ctlRoot string
	var prune bool
	var ignore []string
	cmd := &cobra.Command{
		Use:   "analyze <script-root>",
		Short: "Scan a script tree and persist the dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			if ctlRoot == "" {
				ctlRoot = root
			}
			e, err := scandex.New(resolveDBPath(root), scandex.WithPrune(prune), scandex.WithIgnore(ignore...))
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.Analyze(cmd.Context(), root, ctlRoot)
			if err != nil {
				return err
			}
			row := analyzeRow{
				RunID: report.RunID, Started: report.Started, Duration: report.Duration,
				Scripts: report.Scripts, ControlFiles: report.ControlFiles, Procedures: report.Procedures,
				WarningCounts: report.WarningCounts,
			}
			return render(cmd.OutOrStdout(), format, row, func(w io.Writer, v any) error {
				printAnalyzeText(w, v.(analyzeRow))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ctlRoot, "ctl-root", "", "root to scan for .ctl files (default: same as script root)")
	cmd.Flags().BoolVar(&prune, "prune", false, "remove scripts no longer present on disk instead of marking them stale")
	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "glob pattern to exclude, relative to the scan root (repeatable)")
	return cmd
}

func watchCmd() *cobra.Command {
	var ctlRoot string
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <script-root>",
		Short: "Re-scan the tree on every change until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			if ctlRoot == "" {
				ctlRoot = root
			}
			e, err := scandex.New(resolveDBPath(root))
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.Watch(cmd.Context(), root, ctlRoot, debounce)
			if err != nil {
				return err
			}
			for ev := range events {
				if ev.Err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "scandex: watch scan failed:", ev.Err)
					continue
				}
				row := analyzeRow{
					RunID: ev.Report.RunID, Started: ev.Report.Started, Duration: ev.Report.Duration,
					Scripts: ev.Report.Scripts, ControlFiles: ev.Report.ControlFiles, Procedures: ev.Report.Procedures,
					WarningCounts: ev.Report.WarningCounts,
				}
				printAnalyzeText(cmd.OutOrStdout(), row)
			}
			return cmd.Context().Err()
		},
	}
	cmd.Flags().StringVar(&ctlRoot, "ctl-root", "", "root to scan for .ctl files (default: same as script root)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before re-scanning after a change")
	return cmd
}

func openQueryBuilder(cmd *cobra.Command) (*scandex.QueryBuilder, func(), error) {
	if dbPath == "" {
		return nil, nil, newUsageError(cmd, fmt.Errorf("--db is required for query commands"))
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, nil, err
	}
	return scandex.NewQueryBuilder(s), func() { s.Close() }, nil
}

type forwardRow struct {
	Line       int
	Style      scandex.Style
	Status     scandex.Status
	TargetPath string
	Candidates []string
}

func forwardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward <script-basename>",
		Short: "List outbound dependencies of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueryBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			refs, err := q.ForwardDependencies(args[0])
			if err != nil {
				return err
			}
			rows := make([]forwardRow, 0, len(refs))
			for _, r := range refs {
				rows = append(rows, forwardRow{Line: r.Line, Style: r.Style, Status: r.Status, TargetPath: r.TargetPath, Candidates: r.Candidates})
			}
			return render(cmd.OutOrStdout(), format, rows, func(w io.Writer, v any) error {
				printForwardText(w, v.([]forwardRow))
				return nil
			})
		},
	}
	return cmd
}

type backwardRow struct {
	SourcePath string
	Lines      []int
}

func backwardCmd() *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "backward <basename>",
		Short: "List scripts that depend on the given script or control file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseTargetKind(kindFlag)
			if err != nil {
				return newUsageError(cmd, err)
			}
			q, closeFn, err := openQueryBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			refs, err := q.BackwardDependencies(args[0], kind)
			if err != nil {
				return err
			}
			rows := make([]backwardRow, 0, len(refs))
			for _, r := range refs {
				rows = append(rows, backwardRow{SourcePath: r.SourcePath, Lines: r.Lines})
			}
			return render(cmd.OutOrStdout(), format, rows, func(w io.Writer, v any) error {
				printBackwardText(w, v.([]backwardRow))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "script", "target kind: script or control_file")
	return cmd
}

func parseTargetKind(s string) (scandex.TargetKind, error) {
	switch s {
	case "script":
		return scandex.KindScript, nil
	case "control_file":
		return scandex.KindControlFile, nil
	default:
		return "", fmt.Errorf("unknown --kind %q (want script or control_file)", s)
	}
}

type searchRow struct {
	Qualified  string
	SourcePath string
	Line       int
}

func searchCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "search <needle>",
		Short: "Search stored-procedure names by substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueryBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			hits, err := q.SearchProcedures(args[0], limit, offset)
			if err != nil {
				return err
			}
			rows := make([]searchRow, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, searchRow{Qualified: h.Qualified, SourcePath: h.SourcePath, Line: h.Line})
			}
			return render(cmd.OutOrStdout(), format, rows, func(w io.Writer, v any) error {
				printSearchText(w, v.([]searchRow))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "result offset for pagination")
	return cmd
}

type summaryRow struct {
	ScriptCount       int
	ControlFileCount  int
	ProcedureCount    int
	EdgeCountByKind   map[scandex.TargetKind]int
	EdgeCountByStatus map[scandex.Status]int
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full corpus snapshot as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueryBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			switch format {
			case "yaml":
				return q.ExportYAML(cmd.OutOrStdout())
			case "text", "":
				return q.ExportJSON(cmd.OutOrStdout())
			default:
				return q.ExportJSON(cmd.OutOrStdout())
			}
		},
	}
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print corpus-wide counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueryBuilder(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := q.Summary()
			if err != nil {
				return err
			}
			row := summaryRow{
				ScriptCount: s.ScriptCount, ControlFileCount: s.ControlFileCount, ProcedureCount: s.ProcedureCount,
				EdgeCountByKind: s.EdgeCountByKind, EdgeCountByStatus: s.EdgeCountByStatus,
			}
			return render(cmd.OutOrStdout(), format, row, func(w io.Writer, v any) error {
				printSummaryText(w, v.(summaryRow))
				return nil
			})
		},
	}
	return cmd
}
