package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// HandleMarketAnalysis resolves the market analysis for one subject and
// evaluates the convergence gate toward the competition-analysis stage.
//
// Both sides of the gate fire a join attempt: a competitor-side completion
// joins against its customer, and a customer-side completion re-attempts
// the join for every known competitor. A join whose sibling artifacts are
// not all stored yet is dropped without retry; the other branch's attempt
// picks it up. The mitigation narrows, but does not eliminate, the window
// in which two near-simultaneous completions both observe a missing
// sibling.
func (p *Pipeline) HandleMarketAnalysis(ctx context.Context, msg queue.Message) error {
	var req model.MarketAnalysisRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	_, generated, err := resolve(ctx, p.store, store.CollectionMarketAnalysis, req.Domain,
		func(ctx context.Context) (*model.MarketAnalysis, map[string][]float32, error) {
			ma, err := p.generateMarketAnalysis(ctx, req)
			if err != nil {
				return nil, nil, err
			}
			lens, err := p.competitionLens(ctx, ma.Analysis)
			if err != nil {
				return nil, nil, err
			}
			var vectors map[string][]float32
			if len(lens) > 0 {
				vectors = map[string][]float32{store.VectorCompetitionLens: lens}
			}
			return ma, vectors, nil
		})
	if err != nil {
		return err
	}
	if generated {
		p.link(ctx, store.CollectionMasterData, req.Domain, store.RelMarketAnalysis, req.Domain)
	}

	switch req.Subject() {
	case model.RoleCompetitor:
		return p.attemptComparisonJoin(ctx, req.Customer(), req.Domain)
	default:
		return p.attemptCustomerJoins(ctx, req.Domain)
	}
}

// attemptCustomerJoins fires a join attempt for every known competitor of
// the customer. Without a competitor set yet there is nothing to join.
func (p *Pipeline) attemptCustomerJoins(ctx context.Context, customerDomain string) error {
	set, err := store.GetEntity[model.CompetitorSet](ctx, p.store, store.CollectionCompetitorSet, customerDomain)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(set.Competitors))
	for _, item := range set.Competitors {
		if item.Domain == "" || seen[item.Domain] {
			continue
		}
		seen[item.Domain] = true
		if err := p.attemptComparisonJoin(ctx, customerDomain, item.Domain); err != nil {
			return err
		}
	}
	return nil
}

// attemptComparisonJoin enqueues a competition-analysis request when both
// market analyses and both master-data records exist. Missing artifacts
// drop the attempt silently; they are expected while the sibling branch is
// still in flight.
func (p *Pipeline) attemptComparisonJoin(ctx context.Context, customerDomain, competitorDomain string) error {
	customerMA, err := p.getMarketAnalysis(ctx, customerDomain)
	if err != nil {
		return err
	}
	competitorMA, err := p.getMarketAnalysis(ctx, competitorDomain)
	if err != nil {
		return err
	}
	if customerMA == nil || competitorMA == nil {
		zap.L().Warn("missing market analysis for comparison join",
			zap.String("customer", customerDomain),
			zap.String("competitor", competitorDomain),
		)
		return nil
	}

	customerMaster, err := p.getMasterData(ctx, customerDomain)
	if err != nil {
		return err
	}
	competitorMaster, err := p.getMasterData(ctx, competitorDomain)
	if err != nil {
		return err
	}
	if customerMaster == nil || competitorMaster == nil {
		zap.L().Warn("missing master data for comparison join",
			zap.String("customer", customerDomain),
			zap.String("competitor", competitorDomain),
		)
		return nil
	}

	return p.queue.Publish(ctx, queue.TopicCompetitionAnalysis, model.CompetitionAnalysisRequest{
		CustomerDomain:          customerDomain,
		CompetitorDomain:        competitorDomain,
		CustomerLegalName:       customerMaster.LegalName,
		CompetitorLegalName:     competitorMaster.LegalName,
		CustomerStorageAreaID:   customerMA.StorageAreaID,
		CompetitorStorageAreaID: competitorMA.StorageAreaID,
		CustomerAnalysisID:      customerDomain,
		CompetitorAnalysisID:    competitorDomain,
	})
}

// getMarketAnalysis returns nil without error when the record is absent.
func (p *Pipeline) getMarketAnalysis(ctx context.Context, domain string) (*model.MarketAnalysis, error) {
	ma, err := store.GetEntity[model.MarketAnalysis](ctx, p.store, store.CollectionMarketAnalysis, domain)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return ma, err
}

// getMasterData returns nil without error when the record is absent.
func (p *Pipeline) getMasterData(ctx context.Context, domain string) (*model.MasterData, error) {
	md, err := store.GetEntity[model.MasterData](ctx, p.store, store.CollectionMasterData, domain)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return md, err
}
