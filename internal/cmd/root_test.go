package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/vr180/pkg/job"
)

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before init", func(t *testing.T) {
		// Save and restore
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		result := GetAppIdentity()
		assert.Nil(t, result)
	})

	t.Run("returns identity after set", func(t *testing.T) {
		// If appIdentity is already set from other tests, verify it returns
		if appIdentity != nil {
			result := GetAppIdentity()
			assert.NotNil(t, result)
			assert.Equal(t, appIdentity, result)
		}
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("plain failure")))

	err := exitError(foundry.ExitFileNotFound, "Record missing", errors.New("abc"))
	assert.Equal(t, "Record missing: abc (exit code "+fmt.Sprint(foundry.ExitFileNotFound)+")", err.Error())
	assert.Equal(t, int(foundry.ExitFileNotFound), ExitCode(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, int(foundry.ExitFileNotFound), ExitCode(wrapped))
}

func TestExitWithCode(t *testing.T) {
	origExit, origStderr := osExit, stderr
	defer func() { osExit, stderr = origExit, origStderr }()

	var (
		code = -1
		out  bytes.Buffer
	)
	osExit = func(c int) { code = c }
	stderr = &out

	core, logs := observer.New(zap.DebugLevel)
	err := exitError(foundry.ExitInvalidArgument, "Invalid configuration", errors.New("bad strategy"))
	ExitWithCode(zap.New(core), err)

	assert.Equal(t, int(foundry.ExitInvalidArgument), code)
	assert.Contains(t, out.String(), "Error: Invalid configuration: bad strategy")
	require.Equal(t, 1, logs.FilterMessage("command failed").Len())
	assert.Equal(t, int64(foundry.ExitInvalidArgument), logs.All()[0].ContextMap()["exit_code"])

	out.Reset()
	ExitWithCode(nil, nil)
	assert.Equal(t, 0, code)
	assert.Empty(t, out.String())
}

func TestExitError_Unwraps(t *testing.T) {
	cause := errors.New("cause")
	err := exitError(foundry.ExitInvalidArgument, "bad", cause)
	assert.ErrorIs(t, err, cause)
}

func TestJobExitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"cancelled", fmt.Errorf("clip.mp4: %w", context.Canceled), int(foundry.ExitSignalInt)},
		{"validation", job.Validation("submit", "no file selected"), int(foundry.ExitInvalidArgument)},
		{"conflict", job.Conflict("submit", "job-1"), int(foundry.ExitInvalidArgument)},
		{"not found", job.NotFound("delete", "r-1"), int(foundry.ExitFileNotFound)},
		{"transport", job.Transport("start", errors.New("dial tcp: refused")), int(foundry.ExitExternalServiceUnavailable)},
		{"unclassified", errors.New("boom"), int(foundry.ExitExternalServiceUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := jobExitError("Conversion failed", tt.err)
			assert.Equal(t, tt.want, ExitCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFlagOverrides(t *testing.T) {
	orig := []string{serviceURL, authToken, dataDir, storeFlag, strategyArg}
	defer func() {
		serviceURL, authToken, dataDir, storeFlag, strategyArg = orig[0], orig[1], orig[2], orig[3], orig[4]
	}()

	serviceURL, authToken, dataDir, storeFlag, strategyArg = "", "", "", "", ""
	assert.Empty(t, flagOverrides())

	serviceURL = "https://convert.example.com"
	storeFlag = "sqlite"
	strategyArg = "poll"
	assert.Equal(t, map[string]any{
		"service.base_url": "https://convert.example.com",
		"store.backend":    "sqlite",
		"tracker.strategy": "poll",
	}, flagOverrides())
}
