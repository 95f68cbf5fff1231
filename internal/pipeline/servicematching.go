package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// HandleServiceMatching maps a customer's derived strategies onto the vendor
// service catalog and hands the result to meeting preparation.
func (p *Pipeline) HandleServiceMatching(ctx context.Context, msg queue.Message) error {
	var req model.ServiceMatchingRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	vendorStore := req.VendorCatalogStore
	if vendorStore == "" {
		vendorStore = p.vendorCatalogStore
	}
	if vendorStore == "" {
		zap.L().Warn("no vendor catalog storage area, dropping service matching",
			zap.String("customer", req.CustomerDomain),
		)
		return nil
	}

	matching, err := store.GetEntity[model.ServiceMatching](ctx, p.store, store.CollectionServiceMatching, req.CustomerDomain)
	switch {
	case err == nil:
		zap.L().Info("service matching exists, skipping generation",
			zap.String("customer", req.CustomerDomain),
		)
	case errors.Is(err, store.ErrNotFound):
		matching, err = p.deriveServiceMatching(ctx, req, vendorStore)
		if err != nil {
			return err
		}
	default:
		return err
	}

	return p.queue.Publish(ctx, queue.TopicMeetingPrep, model.MeetingPrepRequest{
		CustomerDomain:    req.CustomerDomain,
		Role:              model.RoleCustomer,
		CustomerLegalName: matching.CustomerLegalName,
		ITStrategyID:      matching.ITStrategyID,
		ServiceMatchingID: req.CustomerDomain,
	})
}

func (p *Pipeline) deriveServiceMatching(ctx context.Context, req model.ServiceMatchingRequest, vendorStore string) (*model.ServiceMatching, error) {
	master, err := p.getMasterData(ctx, req.CustomerDomain)
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, missingPrerequisite("master data", req.CustomerDomain)
	}

	strategy, err := store.GetEntity[model.ITStrategy](ctx, p.store, store.CollectionITStrategy, req.ITStrategyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, missingPrerequisite("it strategy", req.ITStrategyID)
	}
	if err != nil {
		return nil, err
	}

	matching, err := p.generateServiceMatching(ctx, req, master, strategy, vendorStore)
	if err != nil {
		return nil, err
	}

	err = store.PutEntity(ctx, p.store, store.CollectionServiceMatching, req.CustomerDomain, *matching, nil)
	if errors.Is(err, store.ErrConflict) {
		return store.GetEntity[model.ServiceMatching](ctx, p.store, store.CollectionServiceMatching, req.CustomerDomain)
	}
	if err != nil {
		return nil, err
	}

	p.link(ctx, store.CollectionMasterData, req.CustomerDomain, store.RelServiceMatching, req.CustomerDomain)
	return matching, nil
}
