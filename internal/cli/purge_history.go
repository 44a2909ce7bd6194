package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stepguard/stepguard/internal/core/config"
	"github.com/stepguard/stepguard/internal/infra/storage/postgres"
)

var purgeHistoryCmd = &cobra.Command{
	Use:   "purge-history [workflow_id] [days]",
	Short: "Delete recovery history older than the given number of days",
	Args:  cobra.ExactArgs(2),
	Run:   runPurgeHistory,
}

func init() {
	rootCmd.AddCommand(purgeHistoryCmd)
}

func runPurgeHistory(cmd *cobra.Command, args []string) {
	days, err := strconv.Atoi(args[1])
	if err != nil || days < 0 {
		fmt.Printf("Invalid days value: %s\n", args[1])
		os.Exit(1)
	}

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

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	removed, err := postgres.NewHistoryRepo(db).DeleteOlderThan(ctx, args[0], cutoff)
	if err != nil {
		slog.Error("Failed to purge recovery history", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Removed %d recovery records for %s older than %d days\n",
		removed, args[0], days)
}
