package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/astdb-dev/astdb/internal/queryengine"
)

func newQueryCmd() *cobra.Command {
	var topK int
	var minScore float64
	var filePathPattern string

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Embed text and search the vector database under --root for similar nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runQuery(ctx, rootFlagRoot, args[0], queryengine.Options{
				TopK:            topK,
				MinScore:        minScore,
				FilePathPattern: filePathPattern,
			})
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum results to return (0 = engine default)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum similarity score")
	cmd.Flags().StringVar(&filePathPattern, "file-path-pattern", "", "regex a result's file path must match")

	return cmd
}

func runQuery(ctx context.Context, root, text string, opts queryengine.Options) error {
	eng, err := openEngine(ctx, root)
	if err != nil {
		return fmt.Errorf("astdbctl: opening workspace: %w", err)
	}
	defer eng.Close(ctx)

	vector, err := eng.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("astdbctl: embedding query: %w", err)
	}

	results, err := eng.query.Search(ctx, "query", text, vector, opts)
	if err != nil {
		return fmt.Errorf("astdbctl: searching: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
