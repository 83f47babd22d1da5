package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/identity"
	"github.com/doggo-app/locshare/internal/position"
	"github.com/doggo-app/locshare/internal/session"
	"github.com/doggo-app/locshare/internal/surface"
	"github.com/spf13/cobra"
)

func runWalk(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider identity.Provider = identity.File{Path: config.GetString("identity.file")}
	if actorFlag != "" {
		provider = identity.Static(actorFlag)
	}
	actorID, err := provider.ActorID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve actor id: %w", err)
	}

	if err := setupLogging("walker", actorID); err != nil {
		return err
	}

	req := locationRequest()
	source, ok, err := positionSource(atFlag, trackFlag, loopTrack, req.Period())
	if err != nil {
		return err
	}
	if !ok {
		Logger.Warn("No position source given, nothing will be published")
	}
	gate := permissionGate(ctx, !noLocFlag, syscall.SIGUSR1)

	storageCfg := config.GetStorageConfig()
	backend, err := initStorage(storageCfg, config.GetServerConfig())
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	presenterCfg := config.GetPresenterConfig()
	walker := session.NewWalker(session.WalkerDependencies{
		Store:       backend,
		Source:      position.Guard(source, gate),
		Gate:        gate,
		Surface:     surface.NewGeoJSON(surfacePath()),
		ActorID:     actorID,
		ChildPrefix: storageCfg.ChildPrefix,
		Request:     req,
		Zoom:        presenterCfg.Zoom,
		Logger:      Logger,
	})
	return walker.Run(ctx)
}

func runPet(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := setupLogging("petter", ""); err != nil {
		return err
	}

	req := locationRequest()
	source, ok, err := positionSource(atFlag, trackFlag, loopTrack, req.Period())
	if err != nil {
		return err
	}
	var gate *position.Gate
	if ok {
		gate = permissionGate(ctx, !noLocFlag, syscall.SIGUSR1)
		source = position.Guard(source, gate)
	} else {
		source = nil
	}

	backend, err := initStorage(config.GetStorageConfig(), config.GetServerConfig())
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	out := surfacePath()
	Logger.Info("Drawing markers", "path", out)

	petter := session.NewPetter(session.PetterDependencies{
		Store:   backend,
		Source:  source,
		Gate:    gate,
		Surface: surface.NewGeoJSON(out),
		Request: req,
		Zoom:    config.GetPresenterConfig().Zoom,
		Logger:  Logger,
	})
	return petter.Run(ctx)
}

// permissionGate stands in for the device location permission. Each toggle
// signal flips it until ctx is done.
func permissionGate(ctx context.Context, granted bool, toggle os.Signal) *position.Gate {
	gate := position.NewGate(granted)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, toggle)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if gate.Granted() {
					gate.Revoke()
					Logger.Info("Location permission revoked")
				} else {
					gate.Grant()
					Logger.Info("Location permission granted")
				}
			}
		}
	}()
	return gate
}
