// Command tapedeck is the capture service entry point: it loads a session
// configuration, runs the audio pipeline until interrupted, and prints a
// recording summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/tapedeck/internal/capture"
	"github.com/MrWong99/tapedeck/internal/config"
	"github.com/MrWong99/tapedeck/internal/observe"
	"github.com/MrWong99/tapedeck/internal/session"
	"github.com/MrWong99/tapedeck/pkg/audio/graph"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sessionID := flag.String("session", "default", "identifier for the capture session")
	duration := flag.Duration("duration", 0, "stop automatically after this long (0 = run until interrupted)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tapedeck: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tapedeck: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tapedeck starting",
		"config", *configPath,
		"session_id", *sessionID,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "tapedeck"})
		if err != nil {
			slog.Error("failed to initialise metrics", "err", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics shutdown error", "err", err)
			}
		}()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics endpoint error", "err", err)
			}
		}()
		defer srv.Close()
		slog.Info("metrics endpoint up", "addr", cfg.Metrics.ListenAddr)
	}

	// ── Session ───────────────────────────────────────────────────────────────
	manager := session.NewManager(session.ManagerConfig{
		Factory: capture.Factory,
	})

	if err := manager.Start(ctx, *sessionID, cfg.Session); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	printStartupSummary(cfg, *sessionID)
	slog.Info("recording — press Ctrl+C to stop")

	if *duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(*duration):
			slog.Info("configured duration elapsed", "duration", *duration)
		}
	} else {
		<-ctx.Done()
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping session…")
	final, err := manager.Stop(context.Background(), *sessionID)
	if err != nil {
		slog.Error("session teardown failed", "err", err)
		return 1
	}
	printFinalStats(final)
	slog.Info("goodbye")
	return 0
}

// ── Summaries ─────────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, sessionID string) {
	s := cfg.Session
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         tapedeck — capture            ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Session    : %-24s ║\n", clip(sessionID, 24))
	fmt.Printf("║  Format     : %-24s ║\n", clip(s.Format.ToFormat().String(), 24))
	fmt.Printf("║  Buffer     : %-24s ║\n", s.BufferDuration())
	fmt.Printf("║  Sources    : %-24d ║\n", len(s.Sources))
	fmt.Printf("║  Sinks      : %-24d ║\n", len(s.Sinks))
	if cfg.Metrics.Enabled {
		fmt.Printf("║  Metrics    : %-24s ║\n", clip(cfg.Metrics.ListenAddr, 24))
	} else {
		fmt.Printf("║  Metrics    : %-24s ║\n", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printFinalStats(st session.Stats) {
	fmt.Printf("session %s: %d ticks over %s\n",
		st.ID, st.Ticks, time.Since(st.StartedAt).Round(time.Second))
	for _, node := range st.Nodes {
		switch node.Role {
		case graph.RoleSource:
			fmt.Printf("  source %-12s buffers=%d samples=%d errors=%d\n",
				node.Name, node.Source.BuffersProduced, node.Source.SamplesProduced, node.Source.Errors)
		case graph.RoleProcessor:
			fmt.Printf("  proc   %-12s buffers=%d samples=%d errors=%d\n",
				node.Name, node.Processor.BuffersProcessed, node.Processor.SamplesProcessed, node.Processor.Errors)
		case graph.RoleSink:
			fmt.Printf("  sink   %-12s buffers=%d samples=%d errors=%d\n",
				node.Name, node.Sink.BuffersWritten, node.Sink.SamplesWritten, node.Sink.Errors)
		}
	}
	for _, w := range st.Warnings {
		fmt.Printf("  warning: %v\n", w)
	}
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
