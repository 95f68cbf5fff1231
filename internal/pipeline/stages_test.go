package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

func acmeRequest() model.ResearchRequest {
	return model.ResearchRequest{Domain: "acme.com", LegalName: "Acme Corp"}
}

func TestHandleMasterDataStoresAndTriggersAssessment(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()

	err := p.HandleMasterData(ctx, message(queue.TopicMasterData, acmeRequest()))
	require.NoError(t, err)

	assert.Equal(t, 1, st.count(store.CollectionMasterData))
	assert.Equal(t, 1, gen.callCount("company_master_data"))

	published := q.byTopic(queue.TopicAssessment)
	require.Len(t, published, 1)
	req, err := decodeCaptured[model.ResearchRequest](published[0])
	require.NoError(t, err)
	assert.Equal(t, "acme.com", req.Domain)
}

func TestHandleMasterDataDoubleDeliveryGeneratesOnce(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	msg := message(queue.TopicMasterData, acmeRequest())

	require.NoError(t, p.HandleMasterData(ctx, msg))
	require.NoError(t, p.HandleMasterData(ctx, msg))

	assert.Equal(t, 1, gen.callCount("company_master_data"))
	assert.Equal(t, 1, st.count(store.CollectionMasterData))
	// Propagation still ran on the duplicate delivery.
	assert.Len(t, q.byTopic(queue.TopicAssessment), 2)
}

func TestHandleMasterDataRejectsMalformedBody(t *testing.T) {
	p, _, gen, _ := newTestPipeline(t)

	err := p.HandleMasterData(context.Background(), queue.Message{
		Topic: queue.TopicMasterData,
		Body:  []byte(`{not json`),
	})
	require.Error(t, err)
	assert.True(t, shouldDrop(err))
	assert.Equal(t, 0, gen.callCount("company_master_data"))
}

func TestHandleAssessmentCustomerFansOut(t *testing.T) {
	p, _, _, q := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.HandleAssessment(ctx, message(queue.TopicAssessment, acmeRequest())))

	maMsgs := q.byTopic(queue.TopicMarketAnalysis)
	require.Len(t, maMsgs, 1)
	ma, err := decodeCaptured[model.MarketAnalysisRequest](maMsgs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"manufacturing"}, ma.Industries)
	assert.Equal(t, []string{"US", "global"}, ma.Markets)

	compMsgs := q.byTopic(queue.TopicCompetition)
	require.Len(t, compMsgs, 1)
	comp, err := decodeCaptured[model.CompetitionRequest](compMsgs[0])
	require.NoError(t, err)
	assert.InDelta(t, 120.0, comp.RevenueInMio, 0.001)

	assert.Len(t, q.byTopic(queue.TopicNews), 1)
}

func TestHandleAssessmentCompetitorOnlyContinuesToMarketAnalysis(t *testing.T) {
	p, _, _, q := newTestPipeline(t)
	ctx := context.Background()

	req := model.ResearchRequest{
		Domain:         "rival-one.com",
		LegalName:      "Rival One Inc",
		CustomerDomain: "acme.com",
		Role:           model.RoleCompetitor,
	}
	require.NoError(t, p.HandleAssessment(ctx, message(queue.TopicAssessment, req)))

	maMsgs := q.byTopic(queue.TopicMarketAnalysis)
	require.Len(t, maMsgs, 1)
	ma, err := decodeCaptured[model.MarketAnalysisRequest](maMsgs[0])
	require.NoError(t, err)
	assert.Equal(t, model.RoleCompetitor, ma.Role)
	assert.Equal(t, "acme.com", ma.CustomerDomain)

	// Competitor subjects never re-enter competition discovery or news.
	assert.Empty(t, q.byTopic(queue.TopicCompetition))
	assert.Empty(t, q.byTopic(queue.TopicNews))
}

func TestHandleCompetitionDeduplicatesFanOut(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()

	// Customer master data exists so competitor links can attach.
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionMasterData, "acme.com",
		model.MasterData{Domain: "acme.com", LegalName: "Acme Corp"}, nil))

	req := model.CompetitionRequest{
		ResearchRequest: acmeRequest(),
		RevenueInMio:    120,
		Industries:      []string{"manufacturing"},
		Markets:         []string{"US"},
	}
	require.NoError(t, p.HandleCompetition(ctx, message(queue.TopicCompetition, req)))

	// The canned set lists rival-one.com twice; fan-out is per distinct domain.
	assessments := q.byTopic(queue.TopicAssessment)
	require.Len(t, assessments, 2)
	domains := map[string]model.SubjectRole{}
	for _, msg := range assessments {
		r, err := decodeCaptured[model.ResearchRequest](msg)
		require.NoError(t, err)
		domains[r.Domain] = r.Role
		assert.Equal(t, "acme.com", r.CustomerDomain)
	}
	assert.Equal(t, model.RoleCompetitor, domains["rival-one.com"])
	assert.Equal(t, model.RoleCompetitor, domains["rival-two.com"])

	// Master data was ensured per competitor, plus the customer's record.
	assert.Equal(t, 3, st.count(store.CollectionMasterData))
	assert.Equal(t, 2, gen.callCount("company_master_data"))
	assert.Equal(t, 2, st.linked(store.CollectionMasterData, store.RelCompetitors))
}

func TestHandleCompetitionDoubleDeliveryKeepsSet(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionMasterData, "acme.com",
		model.MasterData{Domain: "acme.com", LegalName: "Acme Corp"}, nil))
	msg := message(queue.TopicCompetition, model.CompetitionRequest{
		ResearchRequest: acmeRequest(),
		Industries:      []string{"manufacturing"},
		Markets:         []string{"US"},
	})

	require.NoError(t, p.HandleCompetition(ctx, msg))
	require.NoError(t, p.HandleCompetition(ctx, msg))

	assert.Equal(t, 1, gen.callCount("competing_companies"))
	assert.Equal(t, 1, st.count(store.CollectionCompetitorSet))
	// Downstream publishes repeat; consumers are idempotent.
	assert.Len(t, q.byTopic(queue.TopicAssessment), 4)
	// The re-run re-links each competitor; the edges stay unique.
	assert.Equal(t, 2, st.linked(store.CollectionMasterData, store.RelCompetitors))
}

func seedMarketAnalysisFixtures(t *testing.T, ctx context.Context, st *memStore, domains ...string) {
	t.Helper()
	for _, domain := range domains {
		require.NoError(t, store.PutEntity(ctx, st, store.CollectionMasterData, domain,
			model.MasterData{Domain: domain, LegalName: domain + " legal"}, nil))
	}
}

func TestMarketAnalysisCompetitorSideJoins(t *testing.T) {
	p, st, _, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com", "rival-one.com")

	// Customer analysis already stored; competitor side completes last.
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionMarketAnalysis, "acme.com",
		model.MarketAnalysis{Domain: "acme.com", Analysis: "customer narrative", StorageAreaID: "vs-acme"}, nil))

	req := model.MarketAnalysisRequest{
		Domain:         "rival-one.com",
		LegalName:      "Rival One Inc",
		Industries:     []string{"manufacturing"},
		Markets:        []string{"US"},
		CustomerDomain: "acme.com",
		Role:           model.RoleCompetitor,
	}
	require.NoError(t, p.HandleMarketAnalysis(ctx, message(queue.TopicMarketAnalysis, req)))

	joins := q.byTopic(queue.TopicCompetitionAnalysis)
	require.Len(t, joins, 1)
	join, err := decodeCaptured[model.CompetitionAnalysisRequest](joins[0])
	require.NoError(t, err)
	assert.Equal(t, "acme.com", join.CustomerDomain)
	assert.Equal(t, "rival-one.com", join.CompetitorDomain)
	assert.Equal(t, "vs-acme", join.CustomerStorageAreaID)
	assert.Equal(t, "acme.com legal", join.CustomerLegalName)
}

func TestMarketAnalysisJoinDropsOnMissingSibling(t *testing.T) {
	p, st, _, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "rival-one.com")

	// No customer analysis stored yet: the join must drop, not retry.
	req := model.MarketAnalysisRequest{
		Domain:         "rival-one.com",
		LegalName:      "Rival One Inc",
		Industries:     []string{"manufacturing"},
		Markets:        []string{"US"},
		CustomerDomain: "acme.com",
		Role:           model.RoleCompetitor,
	}
	require.NoError(t, p.HandleMarketAnalysis(ctx, message(queue.TopicMarketAnalysis, req)))
	assert.Empty(t, q.byTopic(queue.TopicCompetitionAnalysis))
}

func TestMarketAnalysisCustomerSideJoinsEveryCompetitor(t *testing.T) {
	p, st, _, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com", "rival-one.com", "rival-two.com")

	require.NoError(t, store.PutEntity(ctx, st, store.CollectionCompetitorSet, "acme.com",
		model.CompetitorSet{
			CustomerDomain:    "acme.com",
			CustomerLegalName: "Acme Corp",
			Competitors: []model.CompetitorRef{
				{Domain: "rival-one.com", LegalName: "Rival One Inc"},
				{Domain: "rival-two.com", LegalName: "Rival Two GmbH"},
			},
		}, nil))
	// Only rival-one has finished its market analysis.
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionMarketAnalysis, "rival-one.com",
		model.MarketAnalysis{Domain: "rival-one.com", Analysis: "competitor narrative"}, nil))

	req := model.MarketAnalysisRequest{
		Domain:     "acme.com",
		LegalName:  "Acme Corp",
		Industries: []string{"manufacturing"},
		Markets:    []string{"US"},
	}
	require.NoError(t, p.HandleMarketAnalysis(ctx, message(queue.TopicMarketAnalysis, req)))

	joins := q.byTopic(queue.TopicCompetitionAnalysis)
	require.Len(t, joins, 1)
	join, err := decodeCaptured[model.CompetitionAnalysisRequest](joins[0])
	require.NoError(t, err)
	assert.Equal(t, "rival-one.com", join.CompetitorDomain)
}

func TestCompetitionAnalysisIdempotentAndTriggersStrategy(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com", "rival-one.com")

	for _, domain := range []string{"acme.com", "rival-one.com"} {
		require.NoError(t, store.PutEntity(ctx, st, store.CollectionMarketAnalysis, domain,
			model.MarketAnalysis{Domain: domain, Analysis: domain + " narrative"}, nil))
	}

	req := model.CompetitionAnalysisRequest{
		CustomerDomain:       "acme.com",
		CompetitorDomain:     "rival-one.com",
		CustomerLegalName:    "Acme Corp",
		CompetitorLegalName:  "Rival One Inc",
		CustomerAnalysisID:   "acme.com",
		CompetitorAnalysisID: "rival-one.com",
	}
	msg := message(queue.TopicCompetitionAnalysis, req)

	require.NoError(t, p.HandleCompetitionAnalysis(ctx, msg))
	require.NoError(t, p.HandleCompetitionAnalysis(ctx, msg))

	assert.Equal(t, 1, gen.callCount("competition_analysis"))
	assert.Equal(t, 1, st.count(store.CollectionCompetitionAnalysis))

	stored, err := store.GetEntity[model.CompetitionAnalysis](ctx, st,
		store.CollectionCompetitionAnalysis, model.PairKey("acme.com", "rival-one.com"))
	require.NoError(t, err)
	assert.Equal(t, "acme.com|rival-one.com", stored.PairKey)

	// Both deliveries re-emit the strategy trigger.
	assert.Len(t, q.byTopic(queue.TopicITStrategy), 2)
}

func TestITStrategyRequiresPrerequisites(t *testing.T) {
	p, _, gen, q := newTestPipeline(t)
	ctx := context.Background()

	req := model.ITStrategyRequest{CustomerDomain: "acme.com", Role: model.RoleCustomer}
	err := p.HandleITStrategy(ctx, message(queue.TopicITStrategy, req))
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	assert.True(t, shouldDrop(err))

	assert.Equal(t, 0, gen.callCount("it_strategy"))
	assert.Empty(t, q.byTopic(queue.TopicServiceMatching))
}

func TestServiceMatchingRequiresStrategy(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")

	req := model.ServiceMatchingRequest{
		CustomerDomain:     "acme.com",
		CustomerLegalName:  "Acme Corp",
		ITStrategyID:       "acme.com",
		VendorCatalogStore: "vs-vendor-catalog",
	}
	err := p.HandleServiceMatching(ctx, message(queue.TopicServiceMatching, req))
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	assert.True(t, shouldDrop(err))

	assert.Equal(t, 0, gen.callCount("service_matching"))
	assert.Empty(t, q.byTopic(queue.TopicMeetingPrep))
}

func TestMeetingPrepRequiresMatching(t *testing.T) {
	p, st, gen, _ := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionITStrategy, "acme.com",
		model.ITStrategy{CustomerDomain: "acme.com", CustomerLegalName: "Acme Corp"}, nil))

	req := model.MeetingPrepRequest{
		CustomerDomain:    "acme.com",
		CustomerLegalName: "Acme Corp",
		ITStrategyID:      "acme.com",
		ServiceMatchingID: "acme.com",
	}
	err := p.HandleMeetingPrep(ctx, message(queue.TopicMeetingPrep, req))
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	assert.True(t, shouldDrop(err))

	assert.Equal(t, 0, gen.callCount("sales_meeting_prep"))
	assert.Equal(t, 0, st.count(store.CollectionMeetingPrep))
}

func TestITStrategyGeneratesAndTriggersMatching(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionMarketAnalysis, "acme.com",
		model.MarketAnalysis{Domain: "acme.com", Analysis: "narrative"}, nil))

	req := model.ITStrategyRequest{CustomerDomain: "acme.com", Role: model.RoleCustomer}
	msg := message(queue.TopicITStrategy, req)

	require.NoError(t, p.HandleITStrategy(ctx, msg))
	require.NoError(t, p.HandleITStrategy(ctx, msg))

	assert.Equal(t, 1, gen.callCount("it_strategy"))
	assert.Equal(t, 1, st.count(store.CollectionITStrategy))

	matching := q.byTopic(queue.TopicServiceMatching)
	require.Len(t, matching, 2)
	sm, err := decodeCaptured[model.ServiceMatchingRequest](matching[0])
	require.NoError(t, err)
	assert.Equal(t, "vs-vendor-catalog", sm.VendorCatalogStore)
	assert.Equal(t, "acme.com", sm.ITStrategyID)
}

func TestITStrategyStopsWithoutVendorCatalog(t *testing.T) {
	st := newMemStore()
	gen := newMockGen(cannedResponse)
	q := &capturingQueue{}
	p := New(Options{
		Store:  st,
		Queue:  q,
		Gen:    gen,
		Embed:  mockEmbedder{},
		Config: testConfig(),
		Prober: stubProber{reachable: true},
	})
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionMarketAnalysis, "acme.com",
		model.MarketAnalysis{Domain: "acme.com", Analysis: "narrative"}, nil))

	req := model.ITStrategyRequest{CustomerDomain: "acme.com", Role: model.RoleCustomer}
	require.NoError(t, p.HandleITStrategy(ctx, message(queue.TopicITStrategy, req)))

	// The strategy itself still lands; only the hand-off is gated.
	assert.Equal(t, 1, st.count(store.CollectionITStrategy))
	assert.Empty(t, q.byTopic(queue.TopicServiceMatching))
}

func TestServiceMatchingChainsIntoMeetingPrep(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionITStrategy, "acme.com",
		model.ITStrategy{CustomerDomain: "acme.com", CustomerLegalName: "Acme Corp"}, nil))

	req := model.ServiceMatchingRequest{
		CustomerDomain:     "acme.com",
		CustomerLegalName:  "Acme Corp",
		ITStrategyID:       "acme.com",
		VendorCatalogStore: "vs-vendor-catalog",
	}
	require.NoError(t, p.HandleServiceMatching(ctx, message(queue.TopicServiceMatching, req)))

	assert.Equal(t, 1, gen.callCount("service_matching"))
	prepMsgs := q.byTopic(queue.TopicMeetingPrep)
	require.Len(t, prepMsgs, 1)
	prep, err := decodeCaptured[model.MeetingPrepRequest](prepMsgs[0])
	require.NoError(t, err)
	assert.Equal(t, "acme.com", prep.ServiceMatchingID)
}

func TestMeetingPrepIsTerminal(t *testing.T) {
	p, st, gen, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionITStrategy, "acme.com",
		model.ITStrategy{CustomerDomain: "acme.com", CustomerLegalName: "Acme Corp"}, nil))
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionServiceMatching, "acme.com",
		model.ServiceMatching{CustomerDomain: "acme.com", CustomerLegalName: "Acme Corp", ITStrategyID: "acme.com"}, nil))

	req := model.MeetingPrepRequest{
		CustomerDomain:    "acme.com",
		CustomerLegalName: "Acme Corp",
		ITStrategyID:      "acme.com",
		ServiceMatchingID: "acme.com",
	}
	msg := message(queue.TopicMeetingPrep, req)

	require.NoError(t, p.HandleMeetingPrep(ctx, msg))
	require.NoError(t, p.HandleMeetingPrep(ctx, msg))

	assert.Equal(t, 1, gen.callCount("sales_meeting_prep"))
	assert.Equal(t, 1, st.count(store.CollectionMeetingPrep))
	// Nothing is published downstream of the briefing.
	assert.Len(t, q.published, 0)
}

func TestHandleNewsDeduplicatesBySource(t *testing.T) {
	p, st, _, q := newTestPipeline(t)
	ctx := context.Background()
	seedMarketAnalysisFixtures(t, ctx, st, "acme.com")
	require.NoError(t, store.PutEntity(ctx, st, store.CollectionAssessment, "acme.com",
		model.Assessment{
			Domain:     "acme.com",
			Industries: model.Estimate[[]string]{Value: []string{"manufacturing"}, Source: "s", Citation: "c", Confidence: 0.9},
			Markets:    model.Estimate[[]string]{Value: []string{"US"}, Source: "s", Citation: "c", Confidence: 0.9},
		}, nil))

	req := model.NewsRequest{Domain: "acme.com", LegalName: "Acme Corp"}
	msg := message(queue.TopicNews, req)

	require.NoError(t, p.HandleNews(ctx, msg))
	first := q.byTopic(queue.TopicIngest)
	require.Len(t, first, 2)

	ing, err := decodeCaptured[model.IngestRequest](first[0])
	require.NoError(t, err)
	assert.Equal(t, "news/acme.com", ing.StorageArea)
	assert.Equal(t, []string{"manufacturing"}, ing.Context.Industries)

	// Redelivery finds every item already stored and forwards nothing new.
	require.NoError(t, p.HandleNews(ctx, msg))
	assert.Len(t, q.byTopic(queue.TopicIngest), 2)
	assert.Equal(t, 2, st.count(store.CollectionNews))
}
