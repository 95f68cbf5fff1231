package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/pkg/genai"
)

// Evidence is a single grounding excerpt handed to the strategy generator.
type Evidence struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// generate runs one structured generation and attributes its cost to the
// stage. Callers validate the decoded entity after enforcing its identity
// fields; invalid generated content is a generation failure so the
// transport retries it.
func generate(ctx context.Context, client genai.Client, stage string, req genai.Request, out any) error {
	res, err := client.GenerateObject(ctx, req, out)
	if err != nil {
		return generationFailure(stage, err)
	}
	res.Usage.LogCost(res.Model, stage)
	return nil
}

// checked validates a generated entity post-fixup.
func checked[T interface{ Validate() error }](stage string, entity *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if verr := (*entity).Validate(); verr != nil {
		return nil, generationFailure(stage, verr)
	}
	return entity, nil
}

func (p *Pipeline) generateMasterData(ctx context.Context, req model.ResearchRequest) (*model.MasterData, error) {
	var out model.MasterData
	err := generate(ctx, p.gen, "masterdata", genai.Request{
		Instructions: researchAssistantRole,
		Input:        masterDataPrompt(req.LegalName, req.Domain),
		Schema:       masterDataSchema(),
		WebSearch:    true,
	}, &out)
	out.Domain = req.Domain
	return checked("masterdata", &out, err)
}

func (p *Pipeline) generateAssessment(ctx context.Context, req model.ResearchRequest) (*model.Assessment, error) {
	var out model.Assessment
	err := generate(ctx, p.gen, "assessment", genai.Request{
		Instructions: researchAssistantRole,
		Input:        assessmentPrompt(req.LegalName, req.Domain),
		Schema:       assessmentSchema(),
		WebSearch:    true,
	}, &out)
	out.Domain = req.Domain
	return checked("assessment", &out, err)
}

func (p *Pipeline) generateCompetition(ctx context.Context, req model.CompetitionRequest) (*model.CompetitorSet, error) {
	var out model.CompetitorSet
	err := generate(ctx, p.gen, "competition", genai.Request{
		Instructions: researchAssistantRole,
		Input:        competitionPrompt(req),
		Schema:       competitorSetSchema(),
		WebSearch:    true,
	}, &out)
	out.CustomerDomain = req.Customer()
	out.CustomerLegalName = req.LegalName
	return checked("competition", &out, err)
}

func (p *Pipeline) generateMarketAnalysis(ctx context.Context, req model.MarketAnalysisRequest) (*model.MarketAnalysis, error) {
	var out model.MarketAnalysis
	err := generate(ctx, p.gen, "marketanalysis", genai.Request{
		Instructions: researchAssistantRole,
		Input:        marketAnalysisPrompt(req),
		Schema:       marketAnalysisSchema(),
		WebSearch:    true,
	}, &out)
	out.Domain = req.Domain
	out.StorageAreaID = req.StorageAreaID
	return checked("marketanalysis", &out, err)
}

// newsList wraps the generated items so the schema stays a single object.
type newsList struct {
	List []model.NewsItem `json:"list"`
}

func (p *Pipeline) generateNews(ctx context.Context, req model.NewsRequest) ([]model.NewsItem, error) {
	var out newsList
	err := generate(ctx, p.gen, "news", genai.Request{
		Instructions: researchAssistantRole,
		Input:        newsPrompt(req),
		Schema:       newsListSchema(),
		WebSearch:    true,
	}, &out)
	if err != nil {
		return nil, err
	}

	items := out.List
	if max := p.cfg.MaxNewsItems; max > 0 && len(items) > max {
		items = items[:max]
	}
	kept := items[:0]
	for _, item := range items {
		item.Domain = req.Domain
		if strings.TrimSpace(item.Source) == "" || item.Validate() != nil {
			continue
		}
		kept = append(kept, item)
	}
	return kept, nil
}

func (p *Pipeline) generateCompetitionAnalysis(ctx context.Context, req model.CompetitionAnalysisRequest, customerAnalysis, competitorAnalysis string) (*model.CompetitionAnalysis, error) {
	var out model.CompetitionAnalysis
	err := generate(ctx, p.gen, "competitionanalysis", genai.Request{
		Instructions: competitionAnalysisRole,
		Input:        competitionAnalysisPrompt(req, customerAnalysis, competitorAnalysis),
		Schema:       competitionAnalysisSchema(),
		WebSearch:    true,
	}, &out)
	out.PairKey = model.PairKey(req.CustomerDomain, req.CompetitorDomain)
	out.CustomerDomain = req.CustomerDomain
	out.CompetitorDomain = req.CompetitorDomain
	out.CustomerLegalName = req.CustomerLegalName
	out.CompetitorLegalName = req.CompetitorLegalName
	return checked("competitionanalysis", &out, err)
}

func (p *Pipeline) generateITStrategy(ctx context.Context, customerDomain string, profile *model.MasterData, analysis *model.MarketAnalysis, comparisons []model.CompetitionAnalysis, evidence []Evidence) (*model.ITStrategy, error) {
	var out model.ITStrategy
	err := generate(ctx, p.gen, "itstrategy", genai.Request{
		Instructions: itStrategyRole,
		Input:        itStrategyPrompt(customerDomain, profile.LegalName, profile, analysis, comparisons, evidence),
		Schema:       itStrategySchema(),
		WebSearch:    true,
	}, &out)
	out.CustomerDomain = customerDomain
	out.CustomerLegalName = profile.LegalName
	if out.Sources == nil {
		out.Sources = []model.Source{}
	}
	return checked("itstrategy", &out, err)
}

func (p *Pipeline) generateServiceMatching(ctx context.Context, req model.ServiceMatchingRequest, profile *model.MasterData, strategy *model.ITStrategy, vendorCatalogStore string) (*model.ServiceMatching, error) {
	var out model.ServiceMatching
	err := generate(ctx, p.gen, "servicematching", genai.Request{
		Instructions: serviceMatchingRole,
		Input:        serviceMatchingPrompt(req, profile, strategy, vendorCatalogStore),
		Schema:       serviceMatchingSchema(),
	}, &out)
	out.CustomerDomain = req.CustomerDomain
	out.CustomerLegalName = req.CustomerLegalName
	out.ITStrategyID = req.ITStrategyID
	return checked("servicematching", &out, err)
}

func (p *Pipeline) generateMeetingPrep(ctx context.Context, req model.MeetingPrepRequest, profile *model.MasterData, strategy *model.ITStrategy, matching *model.ServiceMatching) (*model.MeetingPrep, error) {
	var out model.MeetingPrep
	err := generate(ctx, p.gen, "meetingprep", genai.Request{
		Instructions: meetingPrepRole,
		Input:        meetingPrepPrompt(req, profile, strategy, matching),
		Schema:       meetingPrepSchema(),
	}, &out)
	out.CustomerDomain = req.CustomerDomain
	out.CustomerLegalName = req.CustomerLegalName
	out.ITStrategyID = req.ITStrategyID
	out.ServiceMatchingID = req.ServiceMatchingID
	return checked("meetingprep", &out, err)
}
