package main

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"llamachat/internal/common/fsutil"
	"llamachat/internal/config"
	"llamachat/internal/engine"
	"llamachat/internal/history"
	"llamachat/internal/manager"
	"llamachat/internal/registry"
)

// app bundles what every command that touches a model needs.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	mgr     *manager.Manager
	store   *history.Store
	closer  io.Closer
	backend bool // engine.InitBackend ran
}

// newApp initializes the llama.cpp backend, scans the models dir, opens
// the history store and builds the manager. logOut receives logs when no log
// file is configured.
func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	log, closer, err := newLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closer: closer}

	reg, err := registry.LoadDir(cfg.Engine.ModelsDir)
	if err != nil {
		// a model given by path still works without a models dir
		log.Warn().Err(err).Str("dir", cfg.Engine.ModelsDir).Msg("models dir not scanned")
	}

	if cfg.Chat.HistoryDB != "" {
		path, err := fsutil.ExpandHome(cfg.Chat.HistoryDB)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if a.store, err = history.Open(path); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	ttl, _ := cfg.Server.TTL()
	wait, _ := cfg.Server.Wait()
	sampling := cfg.Sampling
	engine.InitBackend()
	a.backend = true
	a.mgr, err = manager.NewWithConfig(manager.ManagerConfig{
		Registry:      reg,
		DefaultModel:  cfg.Engine.ModelPath,
		ContextSize:   cfg.Engine.ContextSize,
		BatchSize:     cfg.Engine.BatchSize,
		Threads:       cfg.Engine.Threads,
		GPULayers:     cfg.Engine.GPULayers,
		KeepKQVOnHost: cfg.Engine.KeepKQVOnHost,
		Sampling:      &sampling,
		Template:      cfg.Chat.Template,
		Chat: manager.ChatConfig{
			SystemPrompt:     cfg.Chat.SystemPrompt,
			HistoryLimit:     cfg.Chat.HistoryLimit,
			SummaryInterval:  cfg.Chat.SummaryInterval,
			ReplyMaxTokens:   cfg.Chat.ReplyMaxTokens,
			SummaryMaxTokens: cfg.Chat.SummaryMaxTokens,
		},
		MaxQueueDepth:    cfg.Server.MaxQueueDepth,
		MaxWait:          wait,
		ConversationTTL:  ttl,
		MaxConversations: cfg.Server.MaxConversations,
		StreamInterval:   cfg.Server.StreamInterval(),
		History:          a.store,
		Publisher:        manager.LogPublisher{Logger: log},
		Logger:           &log,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the model, the history store and the log file.
func (a *app) Close() error {
	var errs []error
	if a.mgr != nil {
		errs = append(errs, a.mgr.Close())
	}
	if a.backend {
		engine.FreeBackend()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
	}
	return errors.Join(errs...)
}
