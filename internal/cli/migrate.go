package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	dryRun         bool
	migrateTimeout time.Duration
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the declared schema",
		Long: `Compare the declared tables with the connected databases and apply the
difference table by table in dependency order. Passive entities are skipped.`,
		Example: `  squall schema migrate --dry-run
  squall schema migrate --url postgres://localhost:5432/app`,
		RunE: runMigrate,
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned statements without applying them")
	cmd.Flags().DurationVar(&migrateTimeout, "timeout", 5*time.Minute, "Overall timeout")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
	defer cancel()

	manager := dbal.NewManager()
	b, err := buildSchema(manager)
	if err != nil {
		return err
	}

	_, closeAll, err := connect(ctx, manager)
	if err != nil {
		return err
	}
	defer closeAll()

	return migrate(ctx, cmd, b)
}

type schemaRunner interface {
	ExecuteSchema(ctx context.Context) error
	PlanSchema(ctx context.Context) ([]string, error)
}

func migrate(ctx context.Context, cmd *cobra.Command, b schemaRunner) error {
	out := cmd.OutOrStdout()

	if dryRun {
		stmts, err := b.PlanSchema(ctx)
		if err != nil {
			return fmt.Errorf("failed to plan schema: %w", err)
		}
		if len(stmts) == 0 {
			fmt.Fprintln(out, "Schema is up to date")
			return nil
		}
		for _, stmt := range stmts {
			fmt.Fprintln(out, stmt)
		}
		return nil
	}

	if err := b.ExecuteSchema(ctx); err != nil {
		color.New(color.FgRed).Fprintln(out, "Schema migration failed")
		return err
	}
	color.New(color.FgGreen, color.Bold).Fprintln(out, "Schema applied")
	return nil
}
