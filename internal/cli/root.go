package cli

import (
	"context"
	"fmt"

	"github.com/eleven-am/squall/internal/config"
	"github.com/eleven-am/squall/internal/dbal"
	"github.com/eleven-am/squall/internal/logger"
	"github.com/eleven-am/squall/internal/parser"
	"github.com/eleven-am/squall/internal/schema"
	"github.com/eleven-am/squall/pkg/squall"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

// Global configuration variables
var (
	configFile   string
	squallConfig *config.Config
	databaseURL  string
	debug        bool
	verbose      bool
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "squall",
		Short: "Squall - entity schema builder and relation loader",
		Long: `Squall builds database schemas from tagged Go entities and loads
entities together with their relations.

Squall provides tools for:
- Exporting the normalized runtime schema (json, yaml, msgpack)
- Listing declared tables in dependency order
- Applying or planning the declared schema against live databases
- Selecting entities with inline and post-loaded relations`,
		Version:       squall.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			squallConfig = cfg

			level := cfg.Logging.Level
			if verbose {
				level = "info"
			}
			if debug {
				level = "debug"
			}
			if err := logger.Configure(level, cfg.Logging.Format); err != nil {
				return err
			}
			logger.CLI().Debug("Configuration loaded", "path", config.Path(), "databases", len(cfg.Databases))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: squall.yaml)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "url", "", "connection URL for the default database")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newSelectCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// buildSchema discovers the configured models and builds their schema.
func buildSchema(manager *dbal.Manager) (*schema.Builder, error) {
	dirs := squallConfig.ModelDirectories()
	b, err := schema.NewBuilder(squallConfig.SchemaConfig(), parser.NewDiscovery(dirs...), manager)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema from %v: %w", dirs, err)
	}
	return b, nil
}

// connect opens every configured database and binds it into manager.
func connect(ctx context.Context, manager *dbal.Manager) (map[string]*sqlx.DB, func(), error) {
	configs := squallConfig.DBConfigs(databaseURL)
	if len(configs) == 0 {
		return nil, nil, fmt.Errorf("no database configured: pass --url or add databases to squall.yaml")
	}
	return dbal.ConnectAll(ctx, manager, configs)
}
