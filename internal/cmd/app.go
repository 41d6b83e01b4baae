package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/vr180/internal/config"
	"github.com/3leaps/vr180/internal/observability"
	"github.com/3leaps/vr180/pkg/client"
	"github.com/3leaps/vr180/pkg/probe"
	"github.com/3leaps/vr180/pkg/records"
	"github.com/3leaps/vr180/pkg/service"
	"github.com/3leaps/vr180/pkg/tracker"
)

// app is the wired conversion stack for one command.
type app struct {
	cfg     *config.Config
	service *service.Client
	prober  *probe.Prober
	client  *client.Client
}

func loadedConfig() (*config.Config, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Configuration not loaded", fmt.Errorf("run through the root command"))
	}
	return cfg, nil
}

// newServiceClient builds only the service client, for commands that
// never touch the record history.
func newServiceClient(cfg *config.Config) (*service.Client, error) {
	svc, err := service.New(cfg.Service, cfg.Session(), service.WithLogger(observability.CLILogger))
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid service configuration", err)
	}
	return svc, nil
}

// openApp wires service, prober, tracker, record store and client.
// Adjustments apply to a copy of the loaded configuration.
func openApp(ctx context.Context, adjust ...func(*config.Config)) (*app, error) {
	loaded, err := loadedConfig()
	if err != nil {
		return nil, err
	}
	c := *loaded
	cfg := &c
	for _, fn := range adjust {
		fn(cfg)
	}
	logger := observability.CLILogger

	svc, err := newServiceClient(cfg)
	if err != nil {
		return nil, err
	}

	prober, err := probe.New(cfg.Probe, logger)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid probe configuration", err)
	}

	slot, err := records.OpenSlot(ctx, cfg.RecordsConfig())
	if err != nil {
		return nil, exitError(foundry.ExitFileReadError, "Failed to open record store", err)
	}
	store := records.NewStore(slot, cfg.Store.SlotName, logger)

	tr := tracker.New(cfg.TrackerConfig(), svc, prober, logger)
	cl, err := client.New(ctx, cfg.ClientConfig(), tr, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, exitError(foundry.ExitFileReadError, "Failed to load records", err)
	}

	logger.Debug("conversion client ready",
		zap.Strings("decoders", prober.Decoders()),
		zap.Int("records", len(cl.List())))
	return &app{cfg: cfg, service: svc, prober: prober, client: cl}, nil
}

func (a *app) Close() error {
	return a.client.Close()
}
