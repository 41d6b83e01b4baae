package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/vr180/internal/errors"
	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/pkg/client"
	"github.com/3leaps/vr180/pkg/job"
	"github.com/3leaps/vr180/pkg/output"
	"github.com/3leaps/vr180/pkg/provider"
	"github.com/3leaps/vr180/pkg/records"
)

// reporter renders conversion progress as JSONL or log lines.
type reporter struct {
	jsonl *output.JSONLWriter
	log   *zap.Logger

	lastState    job.State
	lastProgress float64
}

func newReporter(stdout io.Writer) *reporter {
	r := &reporter{log: observability.CLILogger}
	if jsonOutput {
		r.jsonl = output.NewJSONLWriter(stdout, uuid.NewString())
	}
	return r
}

func (r *reporter) Close() error {
	if r.jsonl != nil {
		return r.jsonl.Close()
	}
	return nil
}

func (r *reporter) progress(ctx context.Context, j job.Job) {
	if j.State == r.lastState && j.Progress == r.lastProgress {
		return
	}
	r.lastState, r.lastProgress = j.State, j.Progress

	if r.jsonl != nil {
		_ = r.jsonl.WriteProgress(ctx, &output.ProgressRecord{
			JobID:          j.ID,
			SourceFileName: j.SourceFileName,
			State:          string(j.State),
			Progress:       j.Progress,
			Strategy:       j.Strategy,
		})
		return
	}
	r.log.Info(fmt.Sprintf("%s: %s (%.0f)", j.SourceFileName, j.State, j.Progress),
		zap.String("job_id", j.ID),
		zap.String("state", string(j.State)),
		zap.Float64("progress", j.Progress))
}

func (r *reporter) record(ctx context.Context, rec records.Record, location string) {
	if r.jsonl != nil {
		_ = r.jsonl.WriteRecord(ctx, recordOutput(rec, location))
		return
	}
	fields := []zap.Field{
		zap.String("record_id", rec.ID),
		zap.Int64("size_bytes", rec.SizeBytes),
		zap.Bool("playable", rec.Playable),
	}
	if location != "" {
		fields = append(fields, zap.String("location", location))
	}
	if !rec.Playable {
		r.log.Warn(fmt.Sprintf("%s converted: %s", rec.OriginalName, rec.Advisory), fields...)
		return
	}
	r.log.Info(fmt.Sprintf("%s converted ✅", rec.OriginalName), fields...)
}

func (r *reporter) failure(ctx context.Context, source string, err error) {
	code := errorCode(err)
	if r.jsonl != nil {
		_ = r.jsonl.WriteError(context.WithoutCancel(ctx), &output.ErrorRecord{
			Code:    code,
			Message: job.UserMessage(err),
			Source:  source,
		})
		return
	}
	r.log.Error(fmt.Sprintf("%s: %s", source, job.UserMessage(err)), zap.String("code", code), zap.Error(err))
}

func (r *reporter) summary(ctx context.Context, sum *output.SummaryRecord) {
	if r.jsonl != nil {
		_ = r.jsonl.WriteSummary(context.WithoutCancel(ctx), sum)
		return
	}
	r.log.Info(fmt.Sprintf("Done: %d submitted, %d completed, %d failed, %d cancelled",
		sum.Submitted, sum.Completed, sum.Failed, sum.Cancelled),
		zap.Duration("duration", sum.Duration))
}

func recordOutput(rec records.Record, location string) *output.RecordRecord {
	return &output.RecordRecord{
		ID:              rec.ID,
		OriginalName:    rec.OriginalName,
		Timestamp:       rec.Timestamp,
		SizeBytes:       rec.SizeBytes,
		DurationSeconds: rec.DurationSeconds,
		Playable:        rec.Playable,
		Advisory:        rec.Advisory,
		Downloadable:    rec.Downloadable(),
		Location:        location,
	}
}

func errorCode(err error) string {
	if isCancelled(err) {
		return output.ErrCodeCancelled
	}
	_, code := apperrors.Classify(err)
	return code
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// convertFile submits one local file and blocks until the job is terminal.
// Cancelling ctx cancels the job.
func convertFile(ctx context.Context, c *client.Client, path, name string, rep *reporter) (records.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return records.Record{}, exitError(foundry.ExitFileReadError, "Failed to open video", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return records.Record{}, exitError(foundry.ExitFileReadError, "Failed to stat video", err)
	}
	if st.IsDir() {
		return records.Record{}, job.Validation("submit", "%q is a directory", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	updates, stop := c.Watch()
	defer stop()

	run, err := c.Submit(ctx, client.Upload{
		FileName:    name,
		Body:        f,
		Size:        st.Size(),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
	})
	if err != nil {
		return records.Record{}, err
	}

	for done := false; !done; {
		select {
		case <-ctx.Done():
			if c.Cancel() {
				observability.CLILogger.Warn("cancelling conversion", zap.String("file", name))
			}
			<-run.Done()
			done = true
		case j, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			rep.progress(ctx, j)
		case <-run.Done():
			done = true
		}
	}

	snap := run.Snapshot()
	rep.progress(context.WithoutCancel(ctx), snap)

	switch snap.State {
	case job.StateCompleted:
		rec, ok := c.Get(snap.RecordID)
		if !ok {
			return records.Record{}, job.NotFound("convert", snap.RecordID)
		}
		return rec, nil
	case job.StateCancelled:
		return records.Record{}, fmt.Errorf("%s: %w", name, context.Canceled)
	default:
		if err := run.Err(); err != nil {
			return records.Record{}, err
		}
		return records.Record{}, &job.Error{Kind: job.ErrService, Op: "convert", Detail: snap.ErrorDetail}
	}
}

// downloadRecord writes rec to dst and returns where it landed.
func downloadRecord(ctx context.Context, c *client.Client, id string, dst provider.Destination) (string, error) {
	name, err := c.Download(ctx, id, dst)
	if err != nil {
		return "", err
	}
	return dst.Location(name), nil
}
