package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ollamux/ollamux/internal/app"
	"github.com/ollamux/ollamux/internal/config"
	"github.com/ollamux/ollamux/internal/logger"
	"github.com/ollamux/ollamux/internal/version"
	"github.com/ollamux/ollamux/pkg/format"
	"github.com/ollamux/ollamux/pkg/nerdstats"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(config.UsageExitCode)
	}

	vlog := log.New(log.Writer(), "", 0)
	if cfg.ShowVersion {
		version.PrintBanner(true, vlog)
		os.Exit(0)
	}
	version.PrintBanner(false, vlog)

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(&logger.Config{
		Level:      "info",
		PrettyLogs: true,
	}, "default")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(config.ConfigurationErrorExitCode)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	servers := make([]string, 0, len(cfg.Servers))
	for _, u := range cfg.Servers {
		servers = append(servers, u.String())
	}
	styledLogger.Info("initialising", "version", version.Version, "pid", os.Getpid(),
		"listen", cfg.Listen, "backends", len(cfg.Servers), "servers", servers,
		"silence_timeout", cfg.SilenceTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application := app.New(cfg, styledLogger)
	application.Start()

	select {
	case <-ctx.Done():
	case err := <-application.Errors():
		styledLogger.Error("application error", "error", err)
		cancel()
	}

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)
	styledLogger.Info("ollamux has shut down")
}

func reportProcessStats(log *logger.StyledLogger, startTime time.Time) {
	runtime.GC()
	stats := nerdstats.Snapshot(startTime)

	log.Info("process memory",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"total_alloc", format.Bytes(stats.TotalAlloc),
		"memory_pressure", stats.GetMemoryPressure(),
	)
	log.Info("runtime",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
	)
}
