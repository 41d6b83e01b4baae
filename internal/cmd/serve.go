package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/internal/config"
	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/internal/server"
	"github.com/3leaps/vr180/internal/server/handlers"
	"github.com/3leaps/vr180/pkg/media"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local conversion API",
	Long: `Serve a local HTTP API over the conversion client, for browser front ends.

Endpoints:
  POST   /jobs                 upload a video (multipart field "file")
  GET    /jobs/active          current job
  DELETE /jobs/active          cancel the current job
  GET    /jobs/events          job updates (server-sent events)
  GET    /records              converted videos
  DELETE /records[/{id}]       delete one or all records
  GET    /records/{id}/download
  GET    /media/{ref}          play a converted video
  GET    /health, /version`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	a, err := openApp(ctx, func(c *config.Config) {
		if serveHost != "" {
			c.Server.Host = serveHost
		}
		if servePort != 0 {
			c.Server.Port = servePort
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	cfg := a.cfg

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("service", handlers.ServiceChecker(a.service.Ping))
	hm.RegisterChecker("decoders", handlers.DecoderChecker(a.prober.Decoders))
	if id := GetAppIdentity(); id != nil {
		hm.RegisterChecker("identity", identityHealthChecker{
			binaryName: id.BinaryName,
			envPrefix:  id.EnvPrefix,
			configName: id.ConfigName,
		})
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithFacade(a.client, handlers.APIOptions{
			Spool: media.SpoolOptions{
				MaxMemoryBytes: cfg.Store.SpoolMaxMemoryBytes,
				MaxBytes:       cfg.Upload.MaxBytes,
				TempDir:        cfg.Store.SpoolDir,
			},
			Logger: observability.CLILogger,
		}),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithLogger(observability.CLILogger),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.IdleTimeout, cfg.Server.ShutdownTimeout),
	)

	observability.CLILogger.Info(fmt.Sprintf("Serving on http://%s", srv.Addr()),
		zap.String("service_url", cfg.Service.BaseURL),
		zap.Strings("cors_origins", cfg.Server.CORSOrigins))

	if err := srv.Run(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return fmt.Errorf("missing binary name")
	case c.envPrefix == "":
		return fmt.Errorf("missing env prefix")
	case c.configName == "":
		return fmt.Errorf("missing config name")
	}
	return nil
}
