package app

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/convomem/convomem/pkg/config"
	"github.com/convomem/convomem/pkg/logger"
	"github.com/convomem/convomem/pkg/repositories"
)

// seedProviders loads config.LoadProviderSeed(path) and creates any entry
// whose name isn't already present in llm_providers, so an operator can
// bootstrap provider configuration declaratively instead of calling the
// configure_llm_provider tool by hand on every fresh database.
func (a *App) seedProviders(ctx context.Context, path string) error {
	seeds, err := config.LoadProviderSeed(path)
	if err != nil {
		return err
	}
	for _, s := range seeds {
		if _, err := a.Providers.FindByName(ctx, s.Name); err == nil {
			continue
		}
		metadata := json.RawMessage(`{}`)
		if len(s.Metadata) > 0 {
			m, err := json.Marshal(s.Metadata)
			if err != nil {
				return err
			}
			metadata = m
		}
		var endpoint, apiKeyEnv *string
		if s.Endpoint != "" {
			endpoint = &s.Endpoint
		}
		if s.APIKeyEnv != "" {
			apiKeyEnv = &s.APIKeyEnv
		}
		if _, err := a.Providers.Create(ctx, repositories.ProviderConfig{
			ID:              uuid.NewString(),
			Name:            s.Name,
			Kind:            repositories.ProviderKind(s.Kind),
			Endpoint:        endpoint,
			APIKeyEnv:       apiKeyEnv,
			ModelName:       s.ModelName,
			MaxTokens:       s.MaxTokens,
			Temperature:     s.Temperature,
			IsActive:        s.IsActive,
			Priority:        s.Priority,
			CostPer1kTokens: s.CostPer1kTokens,
			Metadata:        metadata,
		}); err != nil {
			return err
		}
	}
	return nil
}

// watchProviderSeed watches path's parent directory (fsnotify can't watch a
// single file across editors that replace it via rename-on-save) and re-runs
// seedProviders whenever path itself is written or recreated, so an operator
// can add a provider by editing the seed file without restarting the
// process. It runs until ctx is cancelled. An unset path disables watching
// without a log line; failures to start the watcher (e.g. an unwatchable
// filesystem) are logged and otherwise ignored since provider seeding
// already ran once synchronously in Build.
func (a *App) watchProviderSeed(ctx context.Context, path string) {
	if path == "" {
		return
	}
	dir := filepath.Dir(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.L.WithError(err).Warn("failed to create provider seed file watcher")
		return
	}
	if err := watcher.Add(dir); err != nil {
		logger.L.WithError(err).Warn("failed to watch provider seed directory")
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := a.seedProviders(ctx, path); err != nil {
					logger.L.WithError(err).Warn("failed to reload provider seed file")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.L.WithError(err).Warn("provider seed watcher error")
			}
		}
	}()
}
