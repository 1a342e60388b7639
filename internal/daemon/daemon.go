// Package daemon wires configuration into the running service: the
// provider client, session store and sweeper, retrieval index,
// preamble coordinator, tool registry, relay, and gateway.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nadira/kirin/internal/config"
	"github.com/nadira/kirin/internal/tracing"
	"github.com/nadira/kirin/pkg/gateway"
	"github.com/nadira/kirin/pkg/preamble"
	"github.com/nadira/kirin/pkg/provider"
	"github.com/nadira/kirin/pkg/relay"
	"github.com/nadira/kirin/pkg/retrieval"
	"github.com/nadira/kirin/pkg/session"
	"github.com/nadira/kirin/pkg/toolcall"
)

// Daemon owns the component lifecycle.
type Daemon struct {
	cfg         *config.Config
	logger      zerolog.Logger
	instruction *config.InstructionSource
	store       *session.Store
	sweeper     *session.Sweeper
	scorer      *retrieval.VecScorer
	gateway     *gateway.Server
	stopCh      chan struct{}
}

// New builds the full component graph from a validated configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	instruction, err := buildInstruction(cfg, logger)
	if err != nil {
		return nil, err
	}
	d.instruction = instruction

	d.store = session.NewStore(session.Config{
		MaxMessages: cfg.Session.MaxMessages,
		Instruction: instruction.Get,
		Logger:      logger,
	})
	d.sweeper, err = session.NewSweeper(d.store, session.SweeperConfig{
		MaxIdle:  cfg.Session.IdleExpiry,
		Interval: cfg.Session.SweepInterval,
	})
	if err != nil {
		d.teardown()
		return nil, err
	}

	prov, err := provider.New(provider.Config{
		Kind:    cfg.Provider.Kind,
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
	})
	if err != nil {
		d.teardown()
		return nil, err
	}

	augmenter, err := d.buildAugmenter()
	if err != nil {
		d.teardown()
		return nil, err
	}

	coordinator, err := buildCoordinator(cfg, prov, logger)
	if err != nil {
		d.teardown()
		return nil, err
	}

	var registry *toolcall.Registry
	if cfg.Tools.Enabled {
		registry = toolcall.NewRegistry()
		if err := toolcall.RegisterBuiltins(registry); err != nil {
			d.teardown()
			return nil, err
		}
	}

	r, err := relay.NewRelay(relay.Config{
		Store:       d.store,
		Provider:    prov,
		Augmenter:   augmenter,
		Coordinator: coordinator,
		Registry:    registry,
		Model:       cfg.Provider.Model,
		Logger:      logger,
	})
	if err != nil {
		d.teardown()
		return nil, err
	}

	d.gateway, err = gateway.NewServer(gateway.Config{
		Port:   cfg.Gateway.Port,
		Relay:  r,
		Store:  d.store,
		Logger: logger,
	})
	if err != nil {
		d.teardown()
		return nil, err
	}

	return d, nil
}

func buildInstruction(cfg *config.Config, logger zerolog.Logger) (*config.InstructionSource, error) {
	if cfg.Session.InstructionFile == "" {
		return config.NewStaticInstruction(cfg.Session.Instruction), nil
	}
	src, err := config.NewFileInstruction(cfg.Session.InstructionFile, cfg.Session.Instruction, logger)
	if err != nil {
		return nil, fmt.Errorf("instruction file: %w", err)
	}
	return src, nil
}

// buildCoordinator always constructs the coordinator; the deployment
// default only sets its Enabled flag. A request-level progressive flag
// can force a preamble on even when the default is off.
func buildCoordinator(cfg *config.Config, prov provider.CompletionProvider, logger zerolog.Logger) (*preamble.Coordinator, error) {
	return preamble.NewCoordinator(preamble.Config{
		Provider:    prov,
		Model:       cfg.Progressive.Model,
		MaxTokens:   cfg.Progressive.MaxTokens,
		Temperature: cfg.Progressive.Temperature,
		Enabled:     cfg.Progressive.Enabled,
		Logger:      logger,
	})
}

func (d *Daemon) buildAugmenter() (*retrieval.Augmenter, error) {
	if !d.cfg.Retrieval.Enabled {
		return nil, nil
	}

	corpus, err := retrieval.LoadCorpus(d.cfg.Retrieval.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("retrieval corpus: %w", err)
	}

	embedder, err := retrieval.NewOpenAIEmbedder(
		d.cfg.Provider.APIKey,
		d.cfg.Retrieval.EmbeddingModel,
		d.cfg.Provider.BaseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	scorer, err := retrieval.NewVecScorer(ctx, corpus, embedder)
	if err != nil {
		return nil, fmt.Errorf("retrieval index: %w", err)
	}
	d.scorer = scorer

	return retrieval.NewAugmenter(retrieval.AugmenterConfig{
		Corpus:    corpus,
		Scorer:    scorer,
		Threshold: d.cfg.Retrieval.Threshold,
		MaxDocs:   d.cfg.Retrieval.MaxDocs,
		Logger:    d.logger,
	})
}

// Start brings the service up.
func (d *Daemon) Start() error {
	if err := tracing.InitOpenTelemetry("kirin"); err != nil {
		d.logger.Warn().Err(err).Msg("Tracing disabled")
	}

	d.sweeper.Start()
	if err := d.gateway.Start(); err != nil {
		return err
	}

	d.logger.Info().
		Str("provider", d.cfg.Provider.Kind).
		Str("model", d.cfg.Provider.Model).
		Bool("progressive", d.cfg.Progressive.Enabled).
		Bool("retrieval", d.cfg.Retrieval.Enabled).
		Bool("tools", d.cfg.Tools.Enabled).
		Msg("Daemon started")
	return nil
}

// Stop shuts everything down in reverse order.
func (d *Daemon) Stop() error {
	d.logger.Info().Msg("Daemon stopping")

	var firstErr error
	if d.gateway != nil {
		if err := d.gateway.Stop(); err != nil {
			firstErr = err
		}
	}
	if d.sweeper != nil {
		d.sweeper.Stop()
	}
	d.teardown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	close(d.stopCh)
	return firstErr
}

// Wait blocks until Stop completes.
func (d *Daemon) Wait() {
	<-d.stopCh
}

func (d *Daemon) teardown() {
	if d.instruction != nil {
		d.instruction.Stop()
		d.instruction = nil
	}
	if d.scorer != nil {
		_ = d.scorer.Close()
		d.scorer = nil
	}
}
