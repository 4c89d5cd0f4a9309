package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/astdb-dev/astdb/internal/parse"
	"github.com/astdb-dev/astdb/internal/scanner"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse every recognized file under --root and insert its nodes into the vector database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runParse(ctx, rootFlagRoot)
		},
	}
	return cmd
}

func runParse(ctx context.Context, root string) error {
	eng, err := openEngine(ctx, root)
	if err != nil {
		return fmt.Errorf("astdbctl: opening workspace: %w", err)
	}
	defer eng.Close(ctx)

	sc, err := scanner.New()
	if err != nil {
		return fmt.Errorf("astdbctl: starting scanner: %w", err)
	}

	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		RespectGitignore: true,
		ExcludePatterns:  eng.cfg.Parse.ExcludeGlob,
	})
	if err != nil {
		return fmt.Errorf("astdbctl: scanning %s: %w", root, err)
	}

	coordinator := eng.newCoordinator()

	var parsed, skipped int
	for result := range results {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "astdbctl: scan: %v\n", result.Error)
			continue
		}
		if result.File == nil || result.File.IsGenerated {
			continue
		}
		if parse.LanguageForPath(result.File.Path) == "" {
			continue
		}

		digest, found, err := eng.metadata.GetFileDigest(ctx, result.File.Path)
		if err == nil && found && digest.ContentHash == result.File.ContentHash {
			skipped++
			continue
		}

		content, readErr := os.ReadFile(result.File.AbsPath)
		if readErr != nil {
			fmt.Fprintf(os.Stderr, "astdbctl: %s: %v\n", result.File.Path, readErr)
			continue
		}
		if err := coordinator.ProcessFile(ctx, result.File.Path, content); err != nil {
			fmt.Fprintf(os.Stderr, "astdbctl: %s: %v\n", result.File.Path, err)
			continue
		}
		parsed++
	}

	if err := eng.facade.Save(ctx); err != nil {
		return fmt.Errorf("astdbctl: saving index: %w", err)
	}

	stats, err := eng.facade.GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("parsed %d file(s), skipped %d unchanged, %d node(s) indexed\n", parsed, skipped, stats.NodeCount)
	return nil
}
