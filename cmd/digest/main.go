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
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"trending-digest/config"
	"trending-digest/export"
	"trending-digest/history"
	"trending-digest/scheduler"
)

func main() {
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "digest",
		Short:         "Daily GitHub trending and Hacker News digest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./digest.yaml", "path to the YAML config file")

	root.AddCommand(
		runCmd(&cfgPath),
		regenerateCmd(&cfgPath),
		serveCmd(&cfgPath),
		historyCmd(&cfgPath),
	)
	return root
}

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch today's rankings, generate summaries and export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.finish(a.runner.Run(cmd.Context()))
		},
	}
}

func regenerateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild every exported day from stored data without fetching or generating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.finish(a.runner.Regenerate(cmd.Context()))
		},
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	var (
		runNow      bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the digest every day at digest_time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, *cfgPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := scheduler.New(a.cfg.Timezone)
			if err != nil {
				return err
			}
			task := func(ctx context.Context) error {
				return a.finish(a.runner.Run(ctx))
			}
			if err := sched.Schedule(a.cfg.DigestTime, task); err != nil {
				return err
			}

			if runNow {
				if err := task(ctx); err != nil {
					slog.Error("initial run failed", "error", err)
				}
			}

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.metrics.Handler())
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						slog.Error("metrics server failed", "addr", metricsAddr, "error", err)
					}
				}()
			}

			sched.Start()
			slog.Info("serving", "next_run", sched.NextAfter(time.Now()), "metrics_addr", metricsAddr)
			<-ctx.Done()
			slog.Info("shutting down")
			sched.Stop()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for the /metrics endpoint, disabled when empty")
	return cmd
}

func historyCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history (repo OWNER/NAME | story ID)",
		Short: "Show when an entity was first seen and its current streak",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			loc, err := time.LoadLocation(cfg.Timezone)
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cmd.OutOrStdout(), store, args[0], args[1], today(time.Now(), loc))
		},
	}
}

func printHistory(ctx context.Context, w io.Writer, store historyStore, kind, ref string, day time.Time) error {
	var (
		feed history.Feed
		id   int64
	)
	switch kind {
	case "repo":
		feed = history.FeedRepos
		n, err := store.RepoID(ctx, ref)
		if err != nil {
			return err
		}
		id = n
	case "story":
		feed = history.FeedStories
		n, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid story id %q", ref)
		}
		ok, err := store.StoryExists(ctx, n)
		if err != nil {
			return err
		}
		if ok {
			id = n
		}
	default:
		return fmt.Errorf("unknown entity kind %q: want repo or story", kind)
	}
	if id == 0 {
		return errors.New("never seen: " + ref)
	}

	stats, err := history.NewTracker(store).Stats(ctx, feed, id, day)
	if err != nil {
		return err
	}
	earliest := export.FormatDay(stats.Earliest)
	if earliest == "" {
		earliest = "-"
	}
	_, err = fmt.Fprintf(w, "%s\nearliest: %s\nstreak: %d\nseen before: %t\n", ref, earliest, stats.Streak, stats.SeenBefore)
	return err
}

// today is the calendar date of now in loc, as midnight UTC.
func today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}
