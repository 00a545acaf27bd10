package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/eleven-am/squall/internal/logger"
	"github.com/eleven-am/squall/internal/schema"
	"github.com/eleven-am/squall/internal/selector"
	"github.com/spf13/cobra"
)

var (
	selectWith     []string
	selectInload   []string
	selectPostload []string
	selectLimit    uint64
	selectSQL      bool
)

func newSelectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <entity>",
		Short: "Select entities with their relations",
		Long: `Select every entity of the given class and print the hydrated records
as JSON. Relations are loaded with their default method unless requested
with --inload or --postload.`,
		Example: `  squall select User --with posts --with posts.comments --limit 10
  squall select Post --inload author --sql`,
		Args: cobra.ExactArgs(1),
		RunE: runSelect,
	}

	cmd.Flags().StringSliceVar(&selectWith, "with", nil, "Relation path to load")
	cmd.Flags().StringSliceVar(&selectInload, "inload", nil, "Relation path to join into the parent query")
	cmd.Flags().StringSliceVar(&selectPostload, "postload", nil, "Relation path to load with a follow-up query")
	cmd.Flags().Uint64Var(&selectLimit, "limit", 0, "Maximum number of entities")
	cmd.Flags().BoolVar(&selectSQL, "sql", false, "Print the primary statement instead of running it")

	return cmd
}

func runSelect(cmd *cobra.Command, args []string) error {
	manager := dbal.NewManager()
	b, err := buildSchema(manager)
	if err != nil {
		return err
	}

	normalized := b.NormalizeSchema()
	sel, err := newSelector(normalized, args[0])
	if err != nil {
		return err
	}

	if selectSQL {
		query, params, err := sel.SQL()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), query)
		if len(params) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "-- args: %v\n", params)
		}
		return nil
	}

	ctx := cmd.Context()
	conns, closeAll, err := connect(ctx, manager)
	if err != nil {
		return err
	}
	defer closeAll()

	for name, db := range conns {
		sel.Using(name, db)
	}
	primary, ok := conns[normalized[args[0]].Database]
	if !ok {
		return fmt.Errorf("database %s is not configured", normalized[args[0]].Database)
	}

	return fetch(ctx, cmd.OutOrStdout(), sel, primary)
}

func newSelector(n schema.Normalized, class string) (*selector.Selector, error) {
	sel, err := selector.New(n, class)
	if err != nil {
		return nil, err
	}
	for _, path := range selectWith {
		sel.With(path)
	}
	for _, path := range selectInload {
		sel.With(path, selector.Inload())
	}
	for _, path := range selectPostload {
		sel.With(path, selector.Postload())
	}
	if selectLimit > 0 {
		sel.Limit(selectLimit)
	}
	return sel, sel.Err()
}

func fetch(ctx context.Context, w io.Writer, sel *selector.Selector, q selector.Querier) error {
	records, err := sel.Fetch(ctx, q)
	if err != nil {
		return err
	}
	logger.CLI().Debug("Fetched records", "count", len(records))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
