package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
	tablesOrder  bool
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and apply the entity schema",
		Long: `Build the schema declared by the entities in the configured model
directories, then export it, list its tables or apply it.`,
	}

	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newTablesCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the normalized schema",
		Example: `  squall schema export
  squall schema export --format msgpack --output schema.bin`,
		RunE: runExport,
	}

	cmd.Flags().StringVar(&exportFormat, "format", "", "Export format: json, yaml or msgpack (default from config)")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	b, err := buildSchema(dbal.NewManager())
	if err != nil {
		return err
	}

	format := exportFormat
	if format == "" {
		format = squallConfig.Export.Format
	}
	output := exportOutput
	if output == "" {
		output = squallConfig.Export.Output
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if err := b.NormalizeSchema().Encode(w, format); err != nil {
		return fmt.Errorf("failed to export schema: %w", err)
	}
	return nil
}

func newTablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List declared tables",
		Long:  "List every declared table with the tables it references.",
		RunE:  runTables,
	}

	cmd.Flags().BoolVar(&tablesOrder, "cascade", true, "List in dependency order instead of declaration order")

	return cmd
}

func runTables(cmd *cobra.Command, args []string) error {
	b, err := buildSchema(dbal.NewManager())
	if err != nil {
		return err
	}

	tables, err := b.DeclaredTables(tablesOrder)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tbl := range tables {
		line := tbl.Key()
		if deps := tbl.Dependencies(); len(deps) > 0 {
			line += " -> " + strings.Join(deps, ", ")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
