package main

import (
	"context"
	"fmt"
	"time"

	"whisperkey/backend"
	"whisperkey/log"
	"whisperkey/models"
	"whisperkey/orchestrator"
	"whisperkey/wyoming"
)

const recreateWait = 5 * time.Minute

// managedReconfigurer recreates the backend container with the new model
// parameters, waits for it to come back, then repoints the client.
type managedReconfigurer struct {
	mgr    *backend.Manager
	client *wyoming.Client
}

// remoteReconfigurer serves unmanaged setups: the server is someone
// else's, so a model change only updates what we send per request.
type remoteReconfigurer struct {
	client *wyoming.Client
}

func newReconfigurer(mgr *backend.Manager, client *wyoming.Client) orchestrator.Reconfigurer {
	if mgr == nil {
		return &remoteReconfigurer{client: client}
	}
	return &managedReconfigurer{mgr: mgr, client: client}
}

func (r *managedReconfigurer) Apply(cfg orchestrator.ModelConfig) error {
	start := time.Now()
	canonical := models.CanonicalFor(cfg.Model)

	ctx, cancel := context.WithTimeout(context.Background(), recreateWait)
	defer cancel()

	st := r.mgr.Recreate(ctx, backend.Params{
		Model:    canonical,
		Beam:     cfg.Beam,
		Language: models.NormalizeLanguage(cfg.Language),
	})
	if st != backend.StatusRunning {
		return fmt.Errorf("backend recreate left container %s", st)
	}

	deadline := time.Now().Add(recreateWait)
	for !r.client.HealthCheck() {
		if time.Now().After(deadline) {
			return fmt.Errorf("backend not reachable after recreate")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	applyClientParams(r.client, cfg)
	log.ModelChange(cfg.Model, cfg.Beam, cfg.Language, time.Since(start))
	return nil
}

func (r *remoteReconfigurer) Apply(cfg orchestrator.ModelConfig) error {
	applyClientParams(r.client, cfg)
	log.ModelChange(cfg.Model, cfg.Beam, cfg.Language, 0)
	return nil
}

func applyClientParams(client *wyoming.Client, cfg orchestrator.ModelConfig) {
	client.SetModel(models.CanonicalFor(cfg.Model))
	client.SetBeam(cfg.Beam)
	client.SetLanguage(models.NormalizeLanguage(cfg.Language))
}
