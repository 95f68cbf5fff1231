// Package pipeline implements the staged research pipeline: each stage
// resolves its entity (find or generate), persists it exactly once under
// at-least-once delivery, and propagates trigger messages downstream.
package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/config"
	"github.com/sells-group/customer-intel/internal/monitoring"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
	"github.com/sells-group/customer-intel/pkg/embed"
	"github.com/sells-group/customer-intel/pkg/genai"
)

// Pipeline wires the stage handlers to their collaborators.
type Pipeline struct {
	store    store.Store
	queue    queue.Publisher
	gen      genai.Client
	embed    embed.Embedder
	reporter monitoring.Reporter
	cfg      config.PipelineConfig

	// vendorCatalogStore gates the service-matching stage; with no catalog
	// configured the pipeline ends after the IT strategy.
	vendorCatalogStore string

	probe urlProber
}

// Options carries the pipeline dependencies.
type Options struct {
	Store              store.Store
	Queue              queue.Publisher
	Gen                genai.Client
	Embed              embed.Embedder
	Reporter           monitoring.Reporter
	Config             config.PipelineConfig
	VendorCatalogStore string
	// Prober overrides source-URL reachability checks in tests.
	Prober urlProber
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		store:              opts.Store,
		queue:              opts.Queue,
		gen:                opts.Gen,
		embed:              opts.Embed,
		reporter:           opts.Reporter,
		cfg:                opts.Config,
		vendorCatalogStore: opts.VendorCatalogStore,
		probe:              opts.Prober,
	}
	if p.reporter == nil {
		p.reporter = monitoring.LogReporter{}
	}
	if p.probe == nil {
		p.probe = newHTTPProber()
	}
	return p
}

// generator produces a new entity plus optional named vectors.
type generator[T any] func(ctx context.Context) (*T, map[string][]float32, error)

// resolve is the find-or-generate core shared by every stage: look the
// entity up under its natural key, generate and insert on a miss, and
// absorb insert conflicts by re-reading the stored winner. The returned
// bool reports whether this invocation generated the entity. Callers must
// run their propagation regardless of that flag so redelivered or late
// messages still drive partially-completed branches forward.
func resolve[T any](ctx context.Context, s store.Store, collection, key string, gen generator[T]) (*T, bool, error) {
	entity, err := store.GetEntity[T](ctx, s, collection, key)
	if err == nil {
		zap.L().Debug("entity found, skipping generation",
			zap.String("collection", collection),
			zap.String("key", key),
		)
		return entity, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	zap.L().Info("entity missing, generating",
		zap.String("collection", collection),
		zap.String("key", key),
	)
	generated, vectors, err := gen(ctx)
	if err != nil {
		return nil, false, err
	}

	err = store.PutEntity(ctx, s, collection, key, *generated, vectors)
	if err == nil {
		return generated, true, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, false, err
	}

	// A concurrent producer won the insert race: its record is the truth.
	zap.L().Info("insert conflict, using stored winner",
		zap.String("collection", collection),
		zap.String("key", key),
	)
	winner, err := store.GetEntity[T](ctx, s, collection, key)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// link creates a relation edge between two natural keys, logging instead of
// failing when an endpoint is missing. Edges are convenience metadata; the
// pipeline's progress must not stall on them.
func (p *Pipeline) link(ctx context.Context, collection, fromKey, relation, toKey string) {
	err := store.LinkKeys(ctx, p.store, collection, fromKey, relation, toKey)
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("link endpoint missing",
			zap.String("collection", collection),
			zap.String("from", fromKey),
			zap.String("relation", relation),
			zap.String("to", toKey),
		)
		return
	}
	zap.L().Error("link failed",
		zap.String("collection", collection),
		zap.String("relation", relation),
		zap.Error(err),
	)
}
