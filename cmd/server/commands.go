package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igorsal/pr-sentinel/internal/config"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	"github.com/igorsal/pr-sentinel/io/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook endpoint, poller and review worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		app.logger.Info("Starting PR Sentinel service",
			"version", DefaultVersion,
			"environment", os.Getenv("ENVIRONMENT"),
			"dry_run", cfg.Orchestrator.DryRun,
			"poller_enabled", cfg.Poller.Enabled,
		)
		return app.run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the review database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabaseURL(cmd, func(ctx context.Context, dsn string) error {
			if err := postgres.MigrateUp(ctx, dsn); err != nil {
				return err
			}
			return printVersion(ctx, cmd, dsn)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabaseURL(cmd, func(ctx context.Context, dsn string) error {
			if err := postgres.MigrateDown(ctx, dsn); err != nil {
				return err
			}
			return printVersion(ctx, cmd, dsn)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabaseURL(cmd, func(ctx context.Context, dsn string) error {
			return printVersion(ctx, cmd, dsn)
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review owner/repo#number [owner/repo#number...]",
	Short: "Review one or more pull requests in order and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch := make([]models.ProcessPRParams, 0, len(args))
		for _, ref := range args {
			params, err := parsePullRequestRef(ref)
			if err != nil {
				return err
			}
			batch = append(batch, params)
		}
		if len(batch) == 1 {
			batch[0].Title, _ = cmd.Flags().GetString("title")
			batch[0].Author, _ = cmd.Flags().GetString("author")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			cfg.Orchestrator.DryRun = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.close()

		return runReviews(ctx, app.orchestrator, batch, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// runReviews processes the batch sequentially, printing phase progress and a
// line per finished item to errOut and the results as JSON to out.
func runReviews(ctx context.Context, orchestrator interfaces.Orchestrator, batch []models.ProcessPRParams, out, errOut io.Writer) error {
	for i := range batch {
		ref := pullRequestRef(batch[i])
		batch[i].OnStatus = func(update models.StatusUpdate) {
			fmt.Fprintf(errOut, "%s [%3d%%] %s %s\n", ref, update.Progress, update.Phase, update.Message)
		}
	}

	failed := 0
	results := orchestrator.ProcessBatch(ctx, batch, func(index, total int, result *models.ProcessPRResult) {
		status := "ok"
		if !result.Success {
			failed++
			status = "failed: " + result.Error
		}
		fmt.Fprintf(errOut, "[%d/%d] %s %s (%dms)\n", index+1, total, pullRequestRef(batch[index]), status, result.DurationMs)
	})

	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(encoded))

	if failed > 0 {
		return fmt.Errorf("%d of %d reviews failed", failed, len(batch))
	}
	return nil
}

func pullRequestRef(p models.ProcessPRParams) string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.PullNumber)
}

func init() {
	migrateCmd.PersistentFlags().String("database-url", "", "database URL (defaults to DATABASE_URL)")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	reviewCmd.Flags().String("title", "", "pull request title used in the review (single pull request only)")
	reviewCmd.Flags().String("author", "", "pull request author (single pull request only)")
	reviewCmd.Flags().Bool("dry-run", false, "analyze without saving the review")
}

// withDatabaseURL resolves the DSN from the flag or the environment. Only the
// database URL is needed, so the full configuration is not validated here.
func withDatabaseURL(cmd *cobra.Command, fn func(ctx context.Context, dsn string) error) error {
	dsn, _ := cmd.Flags().GetString("database-url")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return fmt.Errorf("database URL is required: set --database-url or DATABASE_URL")
	}
	return fn(cmd.Context(), dsn)
}

func printVersion(ctx context.Context, cmd *cobra.Command, dsn string) error {
	version, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}

// parsePullRequestRef parses "owner/repo#number"
func parsePullRequestRef(ref string) (models.ProcessPRParams, error) {
	repoPart, numberPart, ok := strings.Cut(strings.TrimSpace(ref), "#")
	if !ok {
		return models.ProcessPRParams{}, fmt.Errorf("invalid pull request %q, expected owner/repo#number", ref)
	}
	repo, err := models.ParseRepository(repoPart)
	if err != nil {
		return models.ProcessPRParams{}, err
	}
	number, err := strconv.Atoi(numberPart)
	if err != nil || number <= 0 {
		return models.ProcessPRParams{}, fmt.Errorf("invalid pull request number %q", numberPart)
	}
	return models.ProcessPRParams{Owner: repo.Owner, Repo: repo.Name, PullNumber: number}, nil
}
