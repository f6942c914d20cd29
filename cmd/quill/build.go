package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quill/internal/build"
	"quill/internal/buildpipeline"
	"quill/internal/diag"
	"quill/internal/diagfmt"
	"quill/internal/project"
)

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Validate and package projects",
	Long: `Build validates every project found at path, then packages each project
without errors into its output archive. With --deploy the archive is also
delivered to the project's deploy target.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().Bool("deploy", false, "deploy packaged projects")
	buildCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	deploy, err := cmd.Flags().GetBool("deploy")
	if err != nil {
		return fmt.Errorf("failed to get deploy flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := parseUIMode(uiValue)
	if err != nil {
		return err
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
	logger, err := newLogger(cmd, "build", nil)
	if err != nil {
		return err
	}

	targets, err := resolveTargets(path)
	if err != nil {
		return err
	}
	notifier := &build.RecordingNotifier{}
	opts := build.Options{
		Package:  true,
		Deploy:   deploy,
		Notifier: notifier,
		Matcher:  project.GlobMatcher{},
		Jobs:     jobs,
		Logger:   logger,
	}
	stages := []buildpipeline.Stage{buildpipeline.StageValidate, buildpipeline.StagePackage}
	if deploy {
		stages = append(stages, buildpipeline.StageDeploy)
	}

	var builders []*build.Builder
	if mode.enabled(os.Stdout, os.Getenv) {
		builders, err = startAllWithUI(cmd.Context(), "building", targets, opts, stages)
		if err != nil {
			return err
		}
	} else {
		builders = startAll(cmd.Context(), targets, opts)
	}

	diags, err := collectDiagnostics(cmd.Context(), builders)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := diagfmt.Pretty(out, diags, diagfmt.SourceFunc(contentsOf(builders)), diagfmt.PrettyOpts{
		Color:   colorOn,
		BaseDir: baseDir(path),
	}); err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}

	errOut := cmd.ErrOrStderr()
	for i, b := range builders {
		if showTimings {
			printStageTimings(errOut, targets[i].name(), b.Timings())
		}
		if cfg := b.Config(); cfg != nil && b.Timings().Has(buildpipeline.StagePackage) {
			fmt.Fprintf(out, "packaged %s\n", cfg.OutFile)
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
