package pipeline

import (
	"context"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// HandleAssessment resolves the quantitative assessment for a company and
// fans the pipeline out into the competition, market-analysis, and news
// branches. Competitor subjects only continue into market analysis: letting
// them re-trigger competition discovery would cycle the graph.
func (p *Pipeline) HandleAssessment(ctx context.Context, msg queue.Message) error {
	var req model.ResearchRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	assessment, generated, err := resolve(ctx, p.store, store.CollectionAssessment, req.Domain,
		func(ctx context.Context) (*model.Assessment, map[string][]float32, error) {
			a, err := p.generateAssessment(ctx, req)
			return a, nil, err
		})
	if err != nil {
		return err
	}
	if generated {
		p.link(ctx, store.CollectionMasterData, req.Domain, store.RelAssessment, req.Domain)
	}

	maReq := model.MarketAnalysisRequest{
		Domain:         req.Domain,
		LegalName:      req.LegalName,
		Industries:     assessment.Industries.Value,
		Markets:        assessment.Markets.Value,
		CustomerDomain: req.CustomerDomain,
		Role:           req.Role,
	}
	if err := p.queue.Publish(ctx, queue.TopicMarketAnalysis, maReq); err != nil {
		return err
	}

	if req.Subject() != model.RoleCustomer {
		return nil
	}

	compReq := model.CompetitionRequest{
		ResearchRequest: req,
		RevenueInMio:    assessment.RevenueInMio.Value,
		Industries:      assessment.Industries.Value,
		Markets:         assessment.Markets.Value,
	}
	if err := p.queue.Publish(ctx, queue.TopicCompetition, compReq); err != nil {
		return err
	}

	newsReq := model.NewsRequest{Domain: req.Domain, LegalName: req.LegalName}
	return p.queue.Publish(ctx, queue.TopicNews, newsReq)
}
