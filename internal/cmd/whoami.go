package cmd

import (
	"fmt"
	"sort"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/pkg/job"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Long: `Show the session used for conversion requests and, when the service
exposes a profile endpoint, the account it resolves to.`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	sess := cfg.Session()
	log := observability.CLILogger

	if !sess.Authenticated() {
		log.Info("Not signed in (anonymous requests)", zap.String("service_url", cfg.Service.BaseURL))
		return nil
	}

	svc, err := newServiceClient(cfg)
	if err != nil {
		return err
	}
	profile, err := svc.Profile(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, job.UserMessage(err), err)
	}

	fields := []zap.Field{zap.String("token", sess.MaskedToken())}
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, profile[k]))
	}

	name := sess.Username
	if v, ok := profile["username"].(string); ok && v != "" {
		name = v
	}
	if name == "" {
		name = "unknown user"
	}
	log.Info(fmt.Sprintf("Signed in as %s", name), fields...)
	return nil
}
