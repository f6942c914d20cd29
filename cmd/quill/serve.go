package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/lsp"
	"quill/internal/project"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"lsp"},
	Short:   "Run the language server",
	Long: `Serve runs the quill language server over stdin/stdout. With --listen it
accepts websocket clients on the given address instead, one session per
connection. Logs always go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "serve websocket clients on this address instead of stdio")
	serveCmd.Flags().Duration("debounce", 0, "delay before re-validating an edited file (0=default)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return fmt.Errorf("failed to get listen flag: %w", err)
	}
	debounce, err := cmd.Flags().GetDuration("debounce")
	if err != nil {
		return fmt.Errorf("failed to get debounce flag: %w", err)
	}
	jobs, err := jobsFlag(cmd)
	if err != nil {
		return err
	}
	levelVar := new(slog.LevelVar)
	logger, err := newLogger(cmd, "lsp", levelVar)
	if err != nil {
		return err
	}
	newServer := func() *lsp.Server {
		return lsp.NewServer(lsp.Options{
			Logger:        logger,
			LevelVar:      levelVar,
			Matcher:       project.GlobMatcher{},
			RouteDebounce: debounce,
			Jobs:          jobs,
		})
	}
	ctx := cmd.Context()

	if listen == "" {
		logger.Info("lsp: serving on stdio")
		err := newServer().Serve(ctx, lsp.StdioStream(os.Stdin, os.Stdout))
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return exitError{code: 1}
		}
		return err
	}
	return serveWebsocket(ctx, listen, lsp.WebsocketHandler(ctx, newServer, logger), logger)
}

func serveWebsocket(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("lsp: listening for websocket clients", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("lsp listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("lsp listener shutdown: %w", err)
		}
		return nil
	}
}
