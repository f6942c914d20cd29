package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/prof"
)

var profileSession *prof.Session

// startProfiling starts the profiles requested by the persistent flags.
func startProfiling(cmd *cobra.Command, _ []string) error {
	root := cmd.Root()
	cpu, err := root.PersistentFlags().GetString("cpu-profile")
	if err != nil {
		return fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	mem, err := root.PersistentFlags().GetString("mem-profile")
	if err != nil {
		return fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	tracePath, err := root.PersistentFlags().GetString("runtime-trace")
	if err != nil {
		return fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	s, err := prof.Start(prof.Options{CPU: cpu, Mem: mem, Trace: tracePath})
	if err != nil {
		return err
	}
	profileSession = s
	return nil
}

// stopProfiling flushes profiles. It runs after failing commands too.
func stopProfiling(cmd *cobra.Command) {
	if err := profileSession.Stop(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "failed to write profiles:", err)
	}
	profileSession = nil
}
