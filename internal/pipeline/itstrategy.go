package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// evidenceQuery anchors evidence retrieval for strategy derivation.
const evidenceQuery = "Evidence for IT strategy: competitive strengths/weaknesses, market positioning, trend alignment, innovation posture, customer expectations."

const (
	// maxEvidenceChars bounds a single evidence excerpt.
	maxEvidenceChars = 800
	// comparisonFetchLimit bounds how many stored comparisons feed the
	// strategy context.
	comparisonFetchLimit = 8
	// competitorEvidenceLimit bounds per-competitor evidence retrieval.
	competitorEvidenceLimit = 2
)

// HandleITStrategy derives business-driven IT strategies for a customer
// from its profile, market analysis, and stored comparisons.
func (p *Pipeline) HandleITStrategy(ctx context.Context, msg queue.Message) error {
	var req model.ITStrategyRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	strategy, err := store.GetEntity[model.ITStrategy](ctx, p.store, store.CollectionITStrategy, req.CustomerDomain)
	switch {
	case err == nil:
		zap.L().Info("it strategy exists, skipping generation",
			zap.String("customer", req.CustomerDomain),
		)
	case errors.Is(err, store.ErrNotFound):
		strategy, err = p.deriveITStrategy(ctx, req.CustomerDomain)
		if err != nil {
			return err
		}
	default:
		return err
	}

	return p.enqueueServiceMatching(ctx, req, strategy)
}

func (p *Pipeline) deriveITStrategy(ctx context.Context, customerDomain string) (*model.ITStrategy, error) {
	master, err := p.getMasterData(ctx, customerDomain)
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, missingPrerequisite("master data", customerDomain)
	}

	analysis, err := p.getMarketAnalysis(ctx, customerDomain)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, missingPrerequisite("market analysis", customerDomain)
	}

	comparisons, err := p.customerComparisons(ctx, customerDomain)
	if err != nil {
		return nil, err
	}
	evidence, err := p.collectEvidence(ctx, customerDomain, comparisons)
	if err != nil {
		return nil, err
	}
	if len(evidence) == 0 && analysis.Analysis != "" {
		// Without retrievable excerpts the customer's own narrative is the
		// only grounding available.
		evidence = []Evidence{{
			ID:     customerDomain + "-market-analysis",
			Source: customerDomain,
			Text:   truncateText(analysis.Analysis, maxEvidenceChars),
		}}
	}

	strategy, err := p.generateITStrategy(ctx, customerDomain, master, analysis, comparisons, evidence)
	if err != nil {
		return nil, err
	}

	err = store.PutEntity(ctx, p.store, store.CollectionITStrategy, customerDomain, *strategy, nil)
	if errors.Is(err, store.ErrConflict) {
		return store.GetEntity[model.ITStrategy](ctx, p.store, store.CollectionITStrategy, customerDomain)
	}
	if err != nil {
		return nil, err
	}

	p.link(ctx, store.CollectionMasterData, customerDomain, store.RelITStrategy, customerDomain)
	return strategy, nil
}

func (p *Pipeline) enqueueServiceMatching(ctx context.Context, req model.ITStrategyRequest, strategy *model.ITStrategy) error {
	if p.vendorCatalogStore == "" {
		zap.L().Warn("vendor catalog storage area not configured, skipping service matching",
			zap.String("customer", req.CustomerDomain),
		)
		return nil
	}

	return p.queue.Publish(ctx, queue.TopicServiceMatching, model.ServiceMatchingRequest{
		CustomerDomain:     req.CustomerDomain,
		Role:               model.RoleCustomer,
		CustomerLegalName:  strategy.CustomerLegalName,
		ITStrategyID:       req.CustomerDomain,
		VendorCatalogStore: p.vendorCatalogStore,
	})
}

// customerComparisons loads the stored comparisons for a customer.
func (p *Pipeline) customerComparisons(ctx context.Context, customerDomain string) ([]model.CompetitionAnalysis, error) {
	docs, err := p.store.Search(ctx, store.CollectionCompetitionAnalysis, store.SearchQuery{
		Filter: map[string]string{"customerDomain": customerDomain},
		Limit:  comparisonFetchLimit,
	})
	if err != nil {
		return nil, err
	}

	var comparisons []model.CompetitionAnalysis
	for _, doc := range docs {
		var ca model.CompetitionAnalysis
		if err := json.Unmarshal(doc.Properties, &ca); err != nil {
			continue
		}
		if ca.CompetitorDomain != "" && ca.Analysis != "" {
			comparisons = append(comparisons, ca)
		}
	}
	return comparisons, nil
}

// collectEvidence retrieves market-analysis excerpts for the customer and
// each compared competitor, deduplicated by source and capped.
func (p *Pipeline) collectEvidence(ctx context.Context, customerDomain string, comparisons []model.CompetitionAnalysis) ([]Evidence, error) {
	queryVector, err := p.embed.EmbedText(ctx, evidenceQuery)
	if err != nil {
		return nil, err
	}

	combined, err := p.marketEvidence(ctx, customerDomain, queryVector, comparisonFetchLimit)
	if err != nil {
		return nil, err
	}
	for _, comparison := range comparisons {
		items, err := p.marketEvidence(ctx, comparison.CompetitorDomain, queryVector, competitorEvidenceLimit)
		if err != nil {
			return nil, err
		}
		combined = append(combined, items...)
	}

	maxItems := p.cfg.MaxEvidenceItems
	seen := make(map[string]bool, len(combined))
	var deduped []Evidence
	for _, item := range combined {
		key := item.Source
		if key == "" {
			key = item.ID
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, item)
		if maxItems > 0 && len(deduped) >= maxItems {
			break
		}
	}
	return deduped, nil
}

func (p *Pipeline) marketEvidence(ctx context.Context, domain string, queryVector []float32, limit int) ([]Evidence, error) {
	docs, err := p.store.Search(ctx, store.CollectionMarketAnalysis, store.SearchQuery{
		Vector:     queryVector,
		VectorName: store.VectorCompetitionLens,
		Filter:     map[string]string{"domain": domain},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	var evidence []Evidence
	for _, doc := range docs {
		var props struct {
			Domain   string `json:"domain"`
			Analysis string `json:"analysis"`
		}
		if err := json.Unmarshal(doc.Properties, &props); err != nil {
			continue
		}
		if props.Analysis == "" {
			continue
		}
		source := props.Domain
		if source == "" {
			source = domain
		}
		evidence = append(evidence, Evidence{
			ID:     doc.ID,
			Source: source,
			Text:   truncateText(props.Analysis, maxEvidenceChars),
		})
	}
	return evidence, nil
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
