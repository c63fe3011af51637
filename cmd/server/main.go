package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sl-ot-viewer/internal/company"
	"sl-ot-viewer/internal/config"
	"sl-ot-viewer/internal/realtime"
	"sl-ot-viewer/internal/session"
	"sl-ot-viewer/internal/shell"
	"sl-ot-viewer/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:], config.ExecutableDir(), os.Getenv)
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sl-ot-viewer: %v\n", err)
		os.Exit(2)
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()

	// Initialize the repository watcher (callback is bound once the realtime server exists).
	var rtServer *realtime.Server
	fileWatch := watcher.New(func(repo string, paths []string) {
		if rtServer != nil {
			rtServer.OnDataChanged(repo, paths)
		}
	}, logger)

	// Initialize realtime server.
	rtServer = realtime.New(company.NewLoader(logger), fileWatch, realtime.Options{
		RepoPath:    cfg.RepoPath,
		ExeDir:      cfg.ExeDir,
		StaticDir:   cfg.StaticDir,
		HistorySize: cfg.HistorySize,
		Logger:      logger,
	})

	// Initialize the terminal bridge with the realtime server as its sink.
	locator := shell.Default().WithOverride(shell.Program{Name: cfg.Shell.Program, Args: cfg.Shell.Args})
	bridge := session.NewBridge(session.NewRegistry(), locator, rtServer, session.Options{
		WorkDir: cfg.RepoPath,
		Logger:  logger,
	})
	rtServer.SetTerminal(bridge)

	if cfg.RepoPath != "" {
		if err := fileWatch.Watch(cfg.RepoPath); err != nil {
			logger.Warn("failed to watch repository", "repo", cfg.RepoPath, "error", err)
		}
	}

	// Set up HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: rtServer.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := bridge.Shutdown(ctx); err != nil {
			logger.Warn("terminal did not exit in time", "error", err)
		}
		fileWatch.Shutdown()
		httpServer.Close()
	}()

	logger.Info("sl-ot-viewer running", "url", fmt.Sprintf("http://localhost:%d", cfg.Port), "repo", cfg.RepoPath)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("HTTP server error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

// newLogger writes to stderr and, when configured, appends to the log file.
// A log file that cannot be opened is reported and skipped.
func newLogger(cfg config.Config) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sl-ot-viewer: log file disabled: %v\n", err)
		} else {
			out = io.MultiWriter(os.Stderr, f)
			closeFn = func() { f.Close() }
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeFn
}
