package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/pkg/job"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage converted video records",
	Long: `List, delete and download converted videos kept in the local history.

Records keep their video only when store.persist_media is enabled;
otherwise the video is available until the process that converted it
exits.`,
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List converted videos, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runRecordsList,
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete records and their videos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecordsDelete,
}

var recordsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record",
	Args:  cobra.NoArgs,
	RunE:  runRecordsClear,
}

var recordsDownloadCmd = &cobra.Command{
	Use:   "download <id> <destination>",
	Short: "Save a converted video to a directory or s3:// prefix",
	Long: `Save a converted video under its download name (vr180-<name>.mp4).

Examples:
  vr180 records download 6f1c... ./converted
  vr180 records download 6f1c... s3://bucket/vr180/ --region eu-west-1`,
	Args: cobra.ExactArgs(2),
	RunE: runRecordsDownload,
}

var recordsClearYes bool

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd, recordsDeleteCmd, recordsClearCmd, recordsDownloadCmd)
	recordsClearCmd.Flags().BoolVarP(&recordsClearYes, "yes", "y", false, "Do not ask for confirmation")
	addDestinationFlags(recordsDownloadCmd)
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rep := newReporter(cmd.OutOrStdout())
	defer func() { _ = rep.Close() }()

	list := a.client.List()
	if rep.jsonl != nil {
		for _, rec := range list {
			if err := rep.jsonl.WriteRecord(ctx, recordOutput(rec, "")); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
			}
		}
		return nil
	}

	if len(list) == 0 {
		observability.CLILogger.Info("No converted videos yet")
		return nil
	}
	for i, rec := range list {
		status := "✅"
		if !rec.Playable {
			status = "⚠️  " + rec.Advisory
		}
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] %s  %s  %s", i+1, len(list), rec.ID, rec.OriginalName, status),
			zap.Time("timestamp", rec.Timestamp),
			zap.Int64("size_bytes", rec.SizeBytes),
			zap.Bool("downloadable", rec.Downloadable()))
	}
	return nil
}

func runRecordsDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var missing int
	for _, id := range args {
		if err := a.client.Delete(ctx, id); err != nil {
			if job.IsNotFound(err) {
				observability.CLILogger.Warn("Record not found", zap.String("record_id", id))
				missing++
				continue
			}
			return exitError(foundry.ExitFileWriteError, "Failed to delete record", err)
		}
		observability.CLILogger.Info("Deleted record", zap.String("record_id", id))
	}
	if missing > 0 {
		return exitError(foundry.ExitFileNotFound, "Some records were not found", fmt.Errorf("missing=%d", missing))
	}
	return nil
}

func runRecordsClear(cmd *cobra.Command, args []string) error {
	if !recordsClearYes {
		return exitError(foundry.ExitInvalidArgument, "Refusing to clear records", fmt.Errorf("pass --yes to confirm"))
	}
	ctx := commandContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	n := len(a.client.List())
	if err := a.client.ClearAll(ctx); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to clear records", err)
	}
	observability.CLILogger.Info(fmt.Sprintf("Cleared %d records", n))
	return nil
}

func runRecordsDownload(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	id, target := args[0], args[1]

	dst, err := openDestination(ctx, target, downloadFlags)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", err)
	}
	defer func() { _ = dst.Close() }()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	location, err := downloadRecord(ctx, a.client, id, dst)
	if err != nil {
		return downloadExitError(err)
	}

	rec, _ := a.client.Get(id)
	rep := newReporter(cmd.OutOrStdout())
	defer func() { _ = rep.Close() }()
	rep.record(ctx, rec, location)
	return nil
}
