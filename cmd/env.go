package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/ingest"
	"github.com/sells-group/customer-intel/internal/monitoring"
	"github.com/sells-group/customer-intel/internal/pipeline"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
	"github.com/sells-group/customer-intel/pkg/embed"
	"github.com/sells-group/customer-intel/pkg/filestore"
	"github.com/sells-group/customer-intel/pkg/genai"
	"github.com/sells-group/customer-intel/pkg/notion"
)

// pipelineEnv holds the initialized store, clients, and stage handlers
// shared by the run/worker/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Ingest   *ingest.Service
	Reporter monitoring.Reporter
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured document store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store and all API clients and builds the stage
// handlers against the given transport. Callers should defer env.Close().
func initEnv(ctx context.Context, publisher queue.Publisher) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	gen := genai.NewClient(genai.Options{
		APIKey:            cfg.Anthropic.Key,
		Model:             cfg.Anthropic.Model,
		MaxTokens:         int64(cfg.Anthropic.MaxTokens),
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	})
	embedder, err := embed.NewEmbedder(embed.Options{
		APIKey: cfg.Embed.Key,
		Model:  cfg.Embed.Model,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	files := filestore.NewClient(cfg.FileStore.Key, filestore.WithBaseURL(cfg.FileStore.BaseURL))

	var reporter monitoring.Reporter = monitoring.LogReporter{}
	if cfg.Notion.Token != "" && cfg.Notion.OperationsDB != "" {
		reporter = monitoring.NewNotionReporter(notion.NewClient(cfg.Notion.Token), cfg.Notion.OperationsDB)
		zap.L().Info("notion incident reporting enabled")
	} else {
		zap.L().Debug("notion not configured, incidents go to the log")
	}

	p := pipeline.New(pipeline.Options{
		Store:              st,
		Queue:              publisher,
		Gen:                gen,
		Embed:              embedder,
		Reporter:           reporter,
		Config:             cfg.Pipeline,
		VendorCatalogStore: cfg.Ingest.VendorCatalogStore,
	})
	ing := ingest.NewService(ingest.Options{
		Files:    files,
		Gen:      gen,
		Queue:    publisher,
		Reporter: reporter,
		Config:   cfg.Ingest,
	})

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Ingest:   ing,
		Reporter: reporter,
	}, nil
}
