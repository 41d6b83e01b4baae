package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/vr180/pkg/output"
	"github.com/3leaps/vr180/pkg/provider"
)

var submitCmd = &cobra.Command{
	Use:   "submit <video>",
	Short: "Convert one video to VR180",
	Long: `Upload a 2D video to the conversion service and track the job until it
completes, fails or is cancelled (Ctrl-C). The converted video is added to
the local record history.

Examples:
  vr180 submit trip.mov
  vr180 submit trip.mov --download ./converted
  vr180 submit trip.mov --download s3://bucket/vr180/ --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var (
	submitName     string
	submitDownload string
	downloadFlags  destinationOptions
)

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitName, "name", "", "File name sent to the service (default: base name of the video)")
	submitCmd.Flags().StringVar(&submitDownload, "download", "", "Save the converted video to a directory or s3:// prefix")
	addDestinationFlags(submitCmd)
}

func addDestinationFlags(c *cobra.Command) {
	c.Flags().BoolVar(&downloadFlags.Overwrite, "overwrite", false, "Replace existing files in a local destination")
	c.Flags().StringVarP(&downloadFlags.Region, "region", "r", "", "AWS region for s3 destinations")
	c.Flags().StringVarP(&downloadFlags.Profile, "profile", "p", "", "AWS profile for s3 destinations")
	c.Flags().StringVar(&downloadFlags.Endpoint, "endpoint", "", "Custom S3 endpoint")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	start := time.Now()

	var dst provider.Destination
	if submitDownload != "" {
		d, err := openDestination(ctx, submitDownload, downloadFlags)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --download destination", err)
		}
		defer func() { _ = d.Close() }()
		dst = d
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rep := newReporter(cmd.OutOrStdout())
	defer func() { _ = rep.Close() }()

	sum := &output.SummaryRecord{Submitted: 1}
	defer func() {
		sum.Duration = time.Since(start)
		rep.summary(ctx, sum)
	}()

	rec, err := convertFile(ctx, a.client, args[0], submitName, rep)
	if err != nil {
		rep.failure(ctx, args[0], err)
		if isCancelled(err) {
			sum.Cancelled++
			return exitError(foundry.ExitSignalInt, "Conversion cancelled", err)
		}
		sum.Failed++
		return jobExitError("Conversion failed", err)
	}
	sum.Completed++

	location := ""
	if dst != nil {
		location, err = downloadRecord(ctx, a.client, rec.ID, dst)
		if err != nil {
			rep.failure(ctx, rec.ID, err)
			return downloadExitError(err)
		}
	}
	rep.record(context.WithoutCancel(ctx), rec, location)
	return nil
}
