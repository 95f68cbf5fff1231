package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// HandleMeetingPrep produces the executive briefing for a customer. It is
// the terminal stage; nothing is published downstream.
func (p *Pipeline) HandleMeetingPrep(ctx context.Context, msg queue.Message) error {
	var req model.MeetingPrepRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	_, err := store.GetEntity[model.MeetingPrep](ctx, p.store, store.CollectionMeetingPrep, req.CustomerDomain)
	if err == nil {
		zap.L().Info("meeting prep exists, skipping generation",
			zap.String("customer", req.CustomerDomain),
		)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	master, err := p.getMasterData(ctx, req.CustomerDomain)
	if err != nil {
		return err
	}
	if master == nil {
		return missingPrerequisite("master data", req.CustomerDomain)
	}

	strategy, err := store.GetEntity[model.ITStrategy](ctx, p.store, store.CollectionITStrategy, req.ITStrategyID)
	if errors.Is(err, store.ErrNotFound) {
		return missingPrerequisite("it strategy", req.ITStrategyID)
	}
	if err != nil {
		return err
	}

	matching, err := store.GetEntity[model.ServiceMatching](ctx, p.store, store.CollectionServiceMatching, req.ServiceMatchingID)
	if errors.Is(err, store.ErrNotFound) {
		return missingPrerequisite("service matching", req.ServiceMatchingID)
	}
	if err != nil {
		return err
	}

	prep, err := p.generateMeetingPrep(ctx, req, master, strategy, matching)
	if err != nil {
		return err
	}

	err = store.PutEntity(ctx, p.store, store.CollectionMeetingPrep, req.CustomerDomain, *prep, nil)
	if errors.Is(err, store.ErrConflict) {
		zap.L().Info("meeting prep inserted concurrently", zap.String("customer", req.CustomerDomain))
		return nil
	}
	if err != nil {
		return err
	}

	p.link(ctx, store.CollectionMasterData, req.CustomerDomain, store.RelMeetingPrep, req.CustomerDomain)
	zap.L().Info("meeting prep complete", zap.String("customer", req.CustomerDomain))
	return nil
}
