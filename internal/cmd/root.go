// Package cmd implements the vr180 command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/internal/config"
	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/pkg/job"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo is called from main with build-time values.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var appIdentity *config.Identity

// GetAppIdentity returns the identity set up by the root command, or nil
// before any command ran.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

// Persistent flags.
var (
	cfgFile     string
	verbose     bool
	jsonOutput  bool
	serviceURL  string
	authToken   string
	dataDir     string
	storeFlag   string
	strategyArg string
)

var rootCmd = &cobra.Command{
	Use:   "vr180",
	Short: "Convert 2D videos to VR180",
	Long: `vr180 submits 2D videos to a conversion service, tracks each job to
completion and keeps a local history of converted videos.

Configuration is read from vr180.yaml in the user config directory (or
--config), VR180_* environment variables and flags, in increasing
precedence.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: vr180.yaml in the user config dir)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&jsonOutput, "json", false, "Emit JSONL records on stdout")
	pf.StringVar(&serviceURL, "service-url", "", "Conversion service base URL")
	pf.StringVar(&authToken, "token", "", "Bearer token for the conversion service")
	pf.StringVar(&dataDir, "data-dir", "", "Directory for records and persisted media")
	pf.StringVar(&storeFlag, "store", "", "Record store backend (file|sqlite|memory)")
	pf.StringVar(&strategyArg, "strategy", "", "Job tracking strategy (sync|poll|stream|auto)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initApp(cmd *cobra.Command, args []string) error {
	if appIdentity == nil {
		id := config.DefaultIdentity
		appIdentity = &id
	}
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	config.ConfigFile = cfgFile
	cfg, err := config.Load(commandContext(cmd), flagOverrides())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if err := observability.Configure(appIdentity.BinaryName, cfg.Logging.Profile, cfg.Logging.Level, verbose); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	observability.CLILogger.Debug("configuration loaded",
		zap.String("service_url", cfg.Service.BaseURL),
		zap.String("store", cfg.Store.Backend),
		zap.String("strategy", string(cfg.Tracker.Strategy)),
		zap.String("data_dir", cfg.DataDir))
	return nil
}

// flagOverrides maps explicitly set persistent flags onto config keys.
func flagOverrides() map[string]any {
	o := map[string]any{}
	set := func(key, val string) {
		if val != "" {
			o[key] = val
		}
	}
	set("service.base_url", serviceURL)
	set("auth.token", authToken)
	set("data_dir", dataDir)
	set("store.backend", storeFlag)
	set("tracker.strategy", strategyArg)
	return o
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

var exitCodePattern = regexp.MustCompile(`\(exit code (\d+)\)$`)

// ExitCode extracts the code carried by an exitError, or 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if m := exitCodePattern.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 1
}

// Overridden in tests.
var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
)

// ExitWithCode reports err on stderr and terminates the process with the
// code err carries. A nil err exits 0.
func ExitWithCode(logger *zap.Logger, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	code := ExitCode(err)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		logger.Debug("command failed", zap.Int("exit_code", code), zap.Error(err))
	}
	_ = logger.Sync()
	osExit(code)
}

// jobExitError maps a conversion error kind onto an exit code.
func jobExitError(message string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return exitError(foundry.ExitSignalInt, message, err)
	case job.IsValidation(err), job.IsConflict(err):
		return exitError(foundry.ExitInvalidArgument, message, err)
	case job.IsNotFound(err):
		return exitError(foundry.ExitFileNotFound, message, err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}
