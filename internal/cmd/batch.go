package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/internal/config"
	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/pkg/manifest"
	"github.com/3leaps/vr180/pkg/output"
	"github.com/3leaps/vr180/pkg/provider"
	"github.com/3leaps/vr180/pkg/tracker"
)

var batchCmd = &cobra.Command{
	Use:   "batch <manifest>",
	Short: "Convert the videos listed in a manifest",
	Long: `Convert every video listed in a YAML or JSON batch manifest, one job at
a time. Relative paths and include globs resolve against the manifest's
directory.

Example manifest:

  version: "1.0"
  items:
    - path: clips/beach.mov
  include:
    - "raw/**/*.mp4"
  options:
    continue_on_error: true
    download:
      dir: ./converted

Examples:
  vr180 batch trips.yaml
  vr180 batch trips.yaml --json > results.jsonl
  vr180 batch trips.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var batchDryRun bool

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "Validate the manifest and list the videos without converting")
	addDestinationFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	start := time.Now()
	path := args[0]

	m, err := manifest.Load(path)
	if err != nil {
		observability.CLILogger.Error("Invalid manifest", zap.String("path", path), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	items, err := m.Resolve(filepath.Dir(path))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	if len(items) == 0 {
		return exitError(foundry.ExitInvalidArgument, "Empty batch", fmt.Errorf("manifest %s matched no videos", path))
	}

	if batchDryRun {
		for i, it := range items {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] %s", i+1, len(items), it.DisplayName()), zap.String("path", it.Path))
		}
		return nil
	}

	var strategy tracker.Strategy
	if m.Options.Strategy != "" {
		if strategy, err = tracker.ParseStrategy(m.Options.Strategy); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest strategy", err)
		}
	}

	var dst provider.Destination
	if dl := m.Options.Download; dl != nil {
		opts := downloadFlags
		opts.Overwrite = opts.Overwrite || dl.Overwrite
		dir := dl.Dir
		if !strings.Contains(dir, "://") && !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		d, err := openDestination(ctx, dir, opts)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid download destination", err)
		}
		defer func() { _ = d.Close() }()
		dst = d
	}

	a, err := openApp(ctx, func(c *config.Config) {
		if strategy != "" {
			c.Tracker.Strategy = strategy
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rep := newReporter(cmd.OutOrStdout())
	defer func() { _ = rep.Close() }()

	sum := &output.SummaryRecord{}
	defer func() {
		sum.Duration = time.Since(start)
		rep.summary(ctx, sum)
	}()

	var firstErr error
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		sum.Submitted++
		observability.CLILogger.Debug(fmt.Sprintf("[%d/%d] submitting", i+1, len(items)), zap.String("path", it.Path))

		rec, err := convertFile(ctx, a.client, it.Path, it.DisplayName(), rep)
		if err == nil && dst != nil {
			var location string
			if location, err = downloadRecord(ctx, a.client, rec.ID, dst); err == nil {
				rep.record(ctx, rec, location)
			}
		} else if err == nil {
			rep.record(ctx, rec, "")
		}

		if err != nil {
			rep.failure(ctx, it.Path, err)
			if isCancelled(err) {
				sum.Cancelled++
				return exitError(foundry.ExitSignalInt, "Batch cancelled", err)
			}
			sum.Failed++
			if firstErr == nil {
				firstErr = err
			}
			if !m.ContinueOnError() {
				return jobExitError("Batch stopped", err)
			}
			continue
		}
		sum.Completed++
	}

	if firstErr != nil {
		return jobExitError(fmt.Sprintf("Batch completed with %d failures", sum.Failed), firstErr)
	}
	return nil
}
