package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// HandleCompetition resolves the competitor set for a customer and fans
// each distinct competitor back into the pipeline as a new research input.
// Fan-out width is unbounded: one downstream message per deduplicated
// competitor domain.
func (p *Pipeline) HandleCompetition(ctx context.Context, msg queue.Message) error {
	var req model.CompetitionRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	customerDomain := req.Customer()
	set, _, err := resolve(ctx, p.store, store.CollectionCompetitorSet, customerDomain,
		func(ctx context.Context) (*model.CompetitorSet, map[string][]float32, error) {
			cs, err := p.generateCompetition(ctx, req)
			return cs, nil, err
		})
	if err != nil {
		return err
	}

	customerMasterExists := true
	if _, err := store.GetEntity[model.MasterData](ctx, p.store, store.CollectionMasterData, customerDomain); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		customerMasterExists = false
		zap.L().Warn("missing customer master data before linking competitors",
			zap.String("customer", customerDomain),
		)
	}

	processed := make(map[string]bool, len(set.Competitors))
	for _, item := range set.Competitors {
		if item.Domain == "" || processed[item.Domain] {
			continue
		}
		processed[item.Domain] = true

		competitorReq := model.ResearchRequest{
			Domain:         item.Domain,
			LegalName:      item.LegalName,
			CustomerDomain: customerDomain,
			Role:           model.RoleCompetitor,
		}

		if err := p.ensureMasterData(ctx, competitorReq); err != nil {
			return err
		}
		if customerMasterExists {
			p.link(ctx, store.CollectionMasterData, customerDomain, store.RelCompetitors, item.Domain)
		}

		if err := p.queue.Publish(ctx, queue.TopicAssessment, competitorReq); err != nil {
			return err
		}
	}

	return nil
}

// ensureMasterData guarantees a master-data record exists for the subject,
// generating one on a miss. Insert races with concurrent fan-outs of the
// same competitor are absorbed.
func (p *Pipeline) ensureMasterData(ctx context.Context, req model.ResearchRequest) error {
	_, err := store.GetEntity[model.MasterData](ctx, p.store, store.CollectionMasterData, req.Domain)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	md, err := p.generateMasterData(ctx, req)
	if err != nil {
		return err
	}
	err = store.PutEntity(ctx, p.store, store.CollectionMasterData, req.Domain, *md, nil)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	return nil
}
