package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// comparisonQuery anchors retrieval for the comparison context in the same
// lens the market-analysis vectors were embedded with.
const comparisonQuery = "Compare competitive strengths and weaknesses, niche positioning, market trends, and customer expectations for customer vs competitor."

// HandleCompetitionAnalysis compares one competitor against one customer.
// The pair key makes the comparison idempotent; an existing record still
// re-emits the strategy trigger so late deliveries push the DAG forward.
func (p *Pipeline) HandleCompetitionAnalysis(ctx context.Context, msg queue.Message) error {
	var req model.CompetitionAnalysisRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	pairKey := model.PairKey(req.CustomerDomain, req.CompetitorDomain)
	_, err := store.GetEntity[model.CompetitionAnalysis](ctx, p.store, store.CollectionCompetitionAnalysis, pairKey)
	if err == nil {
		zap.L().Info("competition analysis exists, skipping generation",
			zap.String("pair", pairKey),
		)
		return p.enqueueITStrategy(ctx, req.CustomerDomain)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// Re-check both siblings: the join message may have outlived them.
	customerMA, err := p.getMarketAnalysis(ctx, req.CustomerAnalysisID)
	if err != nil {
		return err
	}
	competitorMA, err := p.getMarketAnalysis(ctx, req.CompetitorAnalysisID)
	if err != nil {
		return err
	}
	if customerMA == nil || competitorMA == nil {
		zap.L().Warn("missing market analysis context for comparison",
			zap.String("customer", req.CustomerAnalysisID),
			zap.String("competitor", req.CompetitorAnalysisID),
		)
		return nil
	}

	queryVector, err := p.embed.EmbedText(ctx, comparisonQuery)
	if err != nil {
		return err
	}

	customerExcerpts, err := p.analysisExcerpts(ctx, req.CustomerDomain, queryVector, 5)
	if err != nil {
		return err
	}
	competitorExcerpts, err := p.analysisExcerpts(ctx, req.CompetitorDomain, queryVector, 5)
	if err != nil {
		return err
	}
	prior, err := p.priorComparisons(ctx, p.cfg.CompetitionContext)
	if err != nil {
		return err
	}

	priorContext := buildAnalysisContext("", prior, p.cfg.MaxPriorCtxChars)
	customerContext := strings.TrimSpace(
		buildAnalysisContext(customerMA.Analysis, customerExcerpts, p.cfg.MaxAnalysisChars) + "\n\n" + priorContext)
	competitorContext := strings.TrimSpace(
		buildAnalysisContext(competitorMA.Analysis, competitorExcerpts, p.cfg.MaxAnalysisChars) + "\n\n" + priorContext)

	analysis, err := p.generateCompetitionAnalysis(ctx, req, customerContext, competitorContext)
	if err != nil {
		return err
	}

	err = store.PutEntity(ctx, p.store, store.CollectionCompetitionAnalysis, pairKey, *analysis, nil)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}

	p.link(ctx, store.CollectionMasterData, req.CustomerDomain, store.RelCompetitionAnalysis, pairKey)
	p.link(ctx, store.CollectionCompetitionAnalysis, pairKey, store.RelCompetitorMaster, req.CompetitorDomain)

	return p.enqueueITStrategy(ctx, req.CustomerDomain)
}

func (p *Pipeline) enqueueITStrategy(ctx context.Context, customerDomain string) error {
	return p.queue.Publish(ctx, queue.TopicITStrategy, model.ITStrategyRequest{
		CustomerDomain: customerDomain,
		Role:           model.RoleCustomer,
	})
}

// analysisExcerpts retrieves the analysis texts nearest the query vector
// for one subject domain.
func (p *Pipeline) analysisExcerpts(ctx context.Context, domain string, queryVector []float32, limit int) ([]string, error) {
	docs, err := p.store.Search(ctx, store.CollectionMarketAnalysis, store.SearchQuery{
		Vector:     queryVector,
		VectorName: store.VectorCompetitionLens,
		Filter:     map[string]string{"domain": domain},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return analysisTexts(docs), nil
}

// priorComparisons retrieves earlier comparison narratives as style and
// context grounding for the next one.
func (p *Pipeline) priorComparisons(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	docs, err := p.store.Search(ctx, store.CollectionCompetitionAnalysis, store.SearchQuery{
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	return analysisTexts(docs), nil
}

func analysisTexts(docs []store.Document) []string {
	var texts []string
	for _, doc := range docs {
		var props struct {
			Analysis string `json:"analysis"`
		}
		if err := json.Unmarshal(doc.Properties, &props); err != nil {
			continue
		}
		if strings.TrimSpace(props.Analysis) != "" {
			texts = append(texts, props.Analysis)
		}
	}
	return texts
}
