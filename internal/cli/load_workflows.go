package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepguard/stepguard/internal/core/config"
	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/infra/storage/postgres"
)

var loadWorkflowsCmd = &cobra.Command{
	Use:   "load-workflows [file]",
	Short: "Load workflow definitions from a YAML file into the database",
	Args:  cobra.ExactArgs(1),
	Run:   runLoadWorkflows,
}

func init() {
	rootCmd.AddCommand(loadWorkflowsCmd)
}

// workflowSaver is the slice of the workflow repository this command needs.
type workflowSaver interface {
	Save(ctx context.Context, wf *domain.Workflow) error
}

func runLoadWorkflows(cmd *cobra.Command, args []string) {
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

	if err := db.Migrate(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	count, err := loadWorkflowsInto(ctx, postgres.NewWorkflowRepo(db), args[0])
	if err != nil {
		slog.Error("Failed to load workflows", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded %d workflow definitions from %s\n", count, args[0])
}

// loadWorkflowsInto parses the definitions file and upserts each workflow,
// returning how many were stored.
func loadWorkflowsInto(ctx context.Context, repo workflowSaver, path string) (int, error) {
	workflows, err := config.LoadWorkflows(path)
	if err != nil {
		return 0, err
	}
	for _, wf := range workflows {
		if err := repo.Save(ctx, wf); err != nil {
			return 0, fmt.Errorf("failed to store workflow %s: %w", wf.ID, err)
		}
	}
	return len(workflows), nil
}
