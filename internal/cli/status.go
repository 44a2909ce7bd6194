package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stepguard/stepguard/internal/core/config"
	"github.com/stepguard/stepguard/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [workflow_id]",
	Short: "Show recent recovery history for a workflow",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum records to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	records, err := postgres.NewHistoryRepo(db).ListByWorkflow(ctx, args[0], statusLimit)
	if err != nil {
		slog.Error("Failed to query recovery history", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tSTEP\tTYPE\tSTRATEGY\tRESULT\tDURATION")

	for _, rec := range records {
		result := "failure"
		if rec.Success {
			result = "success"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.StepID, rec.ErrorType, rec.Strategy, result, rec.Duration)
	}
	_ = w.Flush()
}
