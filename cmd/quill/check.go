package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/build"
	"quill/internal/diag"
	"quill/internal/diagfmt"
	"quill/internal/project"
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate projects and print their diagnostics",
	Long: `Check validates every project found at path (default: the current directory)
and prints the diagnostics that survive each project's filters. A file argument
is checked as a standalone project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	checkCmd.Flags().String("path-mode", "auto", "how paths are shown (auto|absolute|relative|basename)")
	checkCmd.Flags().Int("context", 0, "source lines shown above each diagnostic")
	checkCmd.Flags().Int("max-diagnostics", 0, "maximum number of diagnostics to print (0=all)")
	checkCmd.Flags().StringArray("filter", nil, "suppress a diagnostic code or source glob (repeatable)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("invalid --format value %q (expected pretty|json)", format)
	}
	pathMode, err := cmd.Flags().GetString("path-mode")
	if err != nil {
		return fmt.Errorf("failed to get path-mode flag: %w", err)
	}
	contextLines, err := cmd.Flags().GetInt("context")
	if err != nil {
		return fmt.Errorf("failed to get context flag: %w", err)
	}
	maxDiagnostics, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	filters, err := cmd.Flags().GetStringArray("filter")
	if err != nil {
		return fmt.Errorf("failed to get filter flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	jobs, err := jobsFlag(cmd)
	if err != nil {
		return err
	}
	colorOn, err := useColor(cmd, os.Stdout)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, "check", nil)
	if err != nil {
		return err
	}

	targets, err := resolveTargets(path)
	if err != nil {
		return err
	}
	notifier := &build.RecordingNotifier{}
	builders := startAll(cmd.Context(), targets, build.Options{
		Notifier:     notifier,
		Matcher:      project.GlobMatcher{},
		ExtraFilters: filterValues(filters),
		Jobs:         jobs,
		Logger:       logger,
	})
	diags, err := collectDiagnostics(cmd.Context(), builders)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	base := baseDir(path)
	switch format {
	case "json":
		err = diagfmt.JSON(out, diags, diagfmt.JSONOpts{
			PathMode: diagfmt.ParsePathMode(pathMode),
			BaseDir:  base,
			Max:      maxDiagnostics,
		})
	default:
		shown := diags
		if maxDiagnostics > 0 && len(shown) > maxDiagnostics {
			shown = shown[:maxDiagnostics]
		}
		err = diagfmt.Pretty(out, shown, diagfmt.SourceFunc(contentsOf(builders)), diagfmt.PrettyOpts{
			Color:    colorOn,
			Context:  contextLines,
			PathMode: diagfmt.ParsePathMode(pathMode),
			BaseDir:  base,
		})
		if err == nil {
			err = diagfmt.Summary(out, diags, colorOn)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}

	errOut := cmd.ErrOrStderr()
	if showTimings {
		for i, b := range builders {
			printStageTimings(errOut, targets[i].name(), b.Timings())
		}
	}
	criticals := notifier.Criticals()
	for _, msg := range criticals {
		fmt.Fprintln(errOut, "critical:", msg)
	}
	if len(criticals) > 0 || diag.HasErrors(diags) {
		return exitError{code: 1}
	}
	return nil
}

// filterValues turns --filter flags into diagnostic_filters entries.
func filterValues(flags []string) []any {
	out := make([]any, 0, len(flags))
	for _, f := range flags {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func baseDir(path string) string {
	abs := project.CanonicalPath(path)
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return filepath.Dir(abs)
	}
	return abs
}
