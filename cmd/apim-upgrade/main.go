// Command apim-upgrade runs the installation upgraders outside of the
// server, reports their status, or resets one so it runs again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/apimplane/apim/internal/audit"
	"github.com/apimplane/apim/internal/config"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/repository"
	"github.com/apimplane/apim/internal/upgrader"
)

func main() {
	list := flag.Bool("list", false, "print the status of every upgrader and exit")
	reset := flag.String("reset", "", "mark the named upgrader as failed so the next run applies it again")
	quiet := flag.Bool("quiet", false, "disable the progress bar")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	// Logs go to stderr so they do not interleave with the bar.
	logger := config.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *list, *reset, *quiet); err != nil {
		logger.Error("upgrade failed", "error", config.SanitizeError(err, cfg.DatabaseURL))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, list bool, reset string, quiet bool) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	db, err := audit.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	store, err := upgrader.NewDBStore(db)
	if err != nil {
		return err
	}

	// Upgrader logs only surface at warn level while the bar is drawn.
	upgraderLogger := logger
	if !quiet {
		upgraderLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	runner := upgrader.NewRunner(store, nil, upgraderLogger,
		upgrader.NewDefaultRolesUpgrader(repo, cfg.DefaultOrganizationID, upgraderLogger),
		upgrader.NewPlanOrderUpgrader(repo, upgraderLogger),
		upgrader.NewApiKeySubscriptionsUpgrader(repo, upgraderLogger),
		upgrader.NewAlertTriggerReferenceUpgrader(repo, upgraderLogger),
	)

	switch {
	case list:
		return printStatuses(ctx, os.Stdout, store, runner.Upgraders())
	case reset != "":
		return resetUpgrader(ctx, store, runner.Upgraders(), reset)
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(runner.Upgraders()),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("upgrading"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
	}

	start := time.Now()
	results, err := runner.Run(ctx, func(res upgrader.Result) {
		if bar == nil {
			return
		}
		bar.Describe(fmt.Sprintf("%-32s %s", res.Name, res.Outcome))
		_ = bar.Add(1)
	})
	if bar != nil {
		_ = bar.Finish()
	}

	failed := 0
	for _, res := range results {
		if res.Outcome == upgrader.OutcomeFailure {
			failed++
			logger.Error("upgrader failed", "upgrader", res.Name, "error", res.Err)
		}
	}
	logger.Info("upgrade finished", "upgraders", len(results), "failed", failed, "duration", time.Since(start))

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d upgrader(s) failed", failed)
	}
	return nil
}

func printStatuses(ctx context.Context, w io.Writer, store upgrader.InstallationStore, upgraders []upgrader.Upgrader) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tUPGRADER\tSTATUS\tUPDATED\tMESSAGE")
	for _, u := range upgraders {
		status, err := store.Get(ctx, u.Name())
		switch {
		case errors.Is(err, upgrader.ErrStatusNotFound):
			fmt.Fprintf(tw, "%d\t%s\tPENDING\t-\t\n", u.Order(), u.Name())
		case err != nil:
			return fmt.Errorf("read %s: %w", u.Name(), err)
		default:
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.Order(), u.Name(), status.Value,
				status.UpdatedAt.Format(time.RFC3339), status.Message)
		}
	}
	return tw.Flush()
}

func resetUpgrader(ctx context.Context, store upgrader.InstallationStore, upgraders []upgrader.Upgrader, name string) error {
	for _, u := range upgraders {
		if u.Name() == name {
			return store.Set(ctx, name, model.InstallationFailure, "reset by operator")
		}
	}
	return fmt.Errorf("unknown upgrader %q", name)
}
