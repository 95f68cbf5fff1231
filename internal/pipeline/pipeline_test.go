package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/customer-intel/internal/config"
	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/store"
	"github.com/sells-group/customer-intel/pkg/genai"
)

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxNewsItems:       12,
		MaxEvidenceItems:   12,
		MaxAnalysisChars:   5000,
		MaxPriorCtxChars:   1500,
		CompetitionContext: 3,
		MaxReceive:         3,
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *memStore, *mockGen, *capturingQueue) {
	t.Helper()
	st := newMemStore()
	gen := newMockGen(cannedResponse)
	q := &capturingQueue{}
	p := New(Options{
		Store:              st,
		Queue:              q,
		Gen:                gen,
		Embed:              mockEmbedder{},
		Config:             testConfig(),
		VendorCatalogStore: "vs-vendor-catalog",
		Prober:             stubProber{reachable: true},
	})
	return p, st, gen, q
}

func TestResolveGeneratesOnMiss(t *testing.T) {
	st := newMemStore()
	calls := 0

	entity, generated, err := resolve(context.Background(), st, store.CollectionMasterData, "acme.com",
		func(context.Context) (*model.MasterData, map[string][]float32, error) {
			calls++
			return &model.MasterData{Domain: "acme.com", LegalName: "Acme Corp"}, nil, nil
		})
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Acme Corp", entity.LegalName)

	// Second resolution finds the stored record.
	entity, generated, err = resolve(context.Background(), st, store.CollectionMasterData, "acme.com",
		func(context.Context) (*model.MasterData, map[string][]float32, error) {
			calls++
			return nil, nil, errors.New("must not regenerate")
		})
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Acme Corp", entity.LegalName)
}

func TestResolveConflictReturnsStoredWinner(t *testing.T) {
	st := newMemStore()

	// Seed the winner, then force the insert path to race against it by
	// making the generator insert first.
	_, _, err := resolve(context.Background(), st, store.CollectionMasterData, "acme.com",
		func(ctx context.Context) (*model.MasterData, map[string][]float32, error) {
			// Concurrent producer lands between the miss and our Put.
			winner := model.MasterData{Domain: "acme.com", LegalName: "Winner Corp"}
			require.NoError(t, store.PutEntity(ctx, st, store.CollectionMasterData, "acme.com", winner, nil))
			return &model.MasterData{Domain: "acme.com", LegalName: "Loser Corp"}, nil, nil
		})
	require.NoError(t, err)

	entity, err := store.GetEntity[model.MasterData](context.Background(), st, store.CollectionMasterData, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Winner Corp", entity.LegalName)
}

func TestResolvePropagatesGenerationFailure(t *testing.T) {
	st := newMemStore()

	_, _, err := resolve(context.Background(), st, store.CollectionMasterData, "acme.com",
		func(context.Context) (*model.MasterData, map[string][]float32, error) {
			return nil, nil, generationFailure("masterdata", errors.New("model unavailable"))
		})
	require.Error(t, err)

	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "masterdata", gerr.Stage)
	assert.Equal(t, 0, st.count(store.CollectionMasterData))
}

func TestShouldDropTaxonomy(t *testing.T) {
	verr := &model.ValidationError{Subject: "ResearchRequest"}
	assert.True(t, shouldDrop(verr))
	assert.True(t, shouldDrop(missingPrerequisite("market analysis", "acme.com")))
	assert.False(t, shouldDrop(errors.New("connection reset")))

	// A generation failure retries even when its cause is a validation error.
	assert.False(t, shouldDrop(generationFailure("assessment", verr)))
}

func TestGenerateValidatesAfterFixup(t *testing.T) {
	gen := newMockGen(func(req genai.Request) (string, error) {
		// Missing every required field.
		return `{}`, nil
	})
	p := New(Options{Store: newMemStore(), Queue: &capturingQueue{}, Gen: gen, Embed: mockEmbedder{}, Config: testConfig()})

	_, err := p.generateMasterData(context.Background(), model.ResearchRequest{Domain: "acme.com", LegalName: "Acme Corp"})
	require.Error(t, err)
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
}
