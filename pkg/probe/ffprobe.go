package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/3leaps/vr180/pkg/media"
)

type ffprobeDecoder struct {
	path string
}

func (d *ffprobeDecoder) Name() string { return BackendFFProbe }

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (d *ffprobeDecoder) Decode(ctx context.Context, h *media.Handle) (Result, error) {
	input := h.Path()
	var stdin io.ReadCloser
	if input == "" {
		rc, err := h.Open()
		if err != nil {
			return Result{}, err
		}
		stdin = rc
		input = "pipe:0"
	}
	if stdin != nil {
		defer func() { _ = stdin.Close() }()
	}

	cmd := exec.CommandContext(ctx, d.path,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,codec_name",
		"-of", "json",
		input,
	)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Result{}, fmt.Errorf("ffprobe: %w: %s", err, msg)
		}
		return Result{}, fmt.Errorf("ffprobe: %w", err)
	}

	return parseFFProbe(stdout.Bytes())
}

func parseFFProbe(data []byte) (Result, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var res Result
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			res.Codec = s.CodecName
			break
		}
	}
	if res.Codec == "" {
		return Result{}, errors.New("no video stream")
	}

	if v := strings.TrimSpace(out.Format.Duration); v != "" && v != "N/A" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			res.DurationSeconds = &secs
		}
	}
	return res, nil
}
