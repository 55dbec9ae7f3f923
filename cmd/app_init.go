package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/classification"
	"github.com/docsuite/docflow/internal/extraction"
	"github.com/docsuite/docflow/internal/ingestion"
	"github.com/docsuite/docflow/internal/ocr"
	"github.com/docsuite/docflow/internal/reconciliation"
	"github.com/docsuite/docflow/internal/store"
	"github.com/docsuite/docflow/internal/workflow"
	"github.com/docsuite/docflow/pkg/anthropic"
	"github.com/docsuite/docflow/pkg/notion"
)

// appEnv holds the assembled pipeline and its shared resources.
type appEnv struct {
	Store    store.Store
	Workflow *workflow.Workflow
	Notion   notion.Client
}

// Close releases shared resources.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initApp wires the store, collaborators, and workflow from config.
func initApp(ctx context.Context) (*appEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (DOCFLOW_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ocrExtractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ingestor, err := ingestion.New(cfg.Ingest)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	llm := anthropic.NewClient(cfg.Anthropic.Key)

	wf, err := workflow.New(
		cfg.Workflow,
		st,
		ingestor,
		classification.New(llm, ocrExtractor, st, cfg.Anthropic),
		extraction.New(llm, ocrExtractor, cfg.Anthropic),
		reconciliation.New(llm, cfg.Anthropic),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{Store: st, Workflow: wf}
	if cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token)
	}
	return env, nil
}
