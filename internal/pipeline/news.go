package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// HandleNews researches recent company news and submits each previously
// unseen item for source ingestion. Items are keyed by source URL, so
// repeated runs only forward the delta.
func (p *Pipeline) HandleNews(ctx context.Context, msg queue.Message) error {
	var req model.NewsRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	items, err := p.generateNews(ctx, req)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		zap.L().Info("no news found", zap.String("domain", req.Domain))
		return nil
	}

	batchCtx, err := p.newsBatchContext(ctx, req)
	if err != nil {
		return err
	}

	for _, item := range items {
		fresh, err := p.storeNewsItem(ctx, item)
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}
		if !p.probe.Reachable(ctx, item.Source) {
			zap.L().Warn("news source unreachable, ingesting summary only",
				zap.String("domain", item.Domain),
				zap.String("url", item.Source),
			)
		}
		err = p.queue.Publish(ctx, queue.TopicIngest, model.IngestRequest{
			Domain:      item.Domain,
			URL:         item.Source,
			Fallback:    item.Summary,
			StorageArea: "news/" + item.Domain,
			Type:        "news",
			Context:     batchCtx,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// newsBatchContext assembles the continuation context from the stored
// assessment so the post-ingestion market analysis has its scoping inputs.
func (p *Pipeline) newsBatchContext(ctx context.Context, req model.NewsRequest) (model.BatchContext, error) {
	batchCtx := model.BatchContext{
		Domain:    req.Domain,
		LegalName: req.LegalName,
	}
	assessment, err := store.GetEntity[model.Assessment](ctx, p.store, store.CollectionAssessment, req.Domain)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("no assessment for news context", zap.String("domain", req.Domain))
		return batchCtx, nil
	}
	if err != nil {
		return batchCtx, err
	}
	batchCtx.Industries = assessment.Industries.Value
	batchCtx.Markets = assessment.Markets.Value
	return batchCtx, nil
}

// storeNewsItem inserts a news item keyed by its source URL. It reports
// whether the item was new; conflicts and existing items are not.
func (p *Pipeline) storeNewsItem(ctx context.Context, item model.NewsItem) (bool, error) {
	_, err := store.GetEntity[model.NewsItem](ctx, p.store, store.CollectionNews, item.Source)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	err = store.PutEntity(ctx, p.store, store.CollectionNews, item.Source, item, nil)
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.link(ctx, store.CollectionMasterData, item.Domain, store.RelNews, item.Source)
	return true, nil
}
