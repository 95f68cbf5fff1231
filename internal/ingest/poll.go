package ingest

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/monitoring"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/pkg/filestore"
)

// HandleBatchCheck polls one ingestion batch until it settles or the
// attempt budget runs out. A completed batch re-enters the pipeline as a
// market-analysis request carrying the storage-area id; failed and timed-out
// batches are reported and dropped so the pipeline never stalls on them.
func (s *Service) HandleBatchCheck(ctx context.Context, msg queue.Message) error {
	var req model.BatchCheckRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	storeID := req.StorageAreaID
	if storeID == "" {
		var err error
		storeID, err = s.cache.resolve(ctx, req.StorageAreaName)
		if err != nil {
			return err
		}
	}

	interval := time.Duration(s.cfg.PollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxAttempts := s.cfg.PollMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		batch, err := s.files.GetFileBatch(ctx, storeID, req.BatchID)
		if err != nil {
			zap.L().Warn("batch status check failed",
				zap.String("batch", req.BatchID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		} else {
			switch batch.Status {
			case filestore.BatchCompleted:
				return s.completeBatch(ctx, req, storeID, batch)
			case filestore.BatchFailed, filestore.BatchCancelled:
				return s.reportBatch(ctx, monitoring.IncidentBatchFailed, req, string(batch.Status), batch)
			}
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return s.reportBatch(ctx, monitoring.IncidentBatchTimedOut, req,
		"still in progress after "+strconv.Itoa(maxAttempts)+" checks", nil)
}

// completeBatch feeds the indexed material back into the pipeline.
func (s *Service) completeBatch(ctx context.Context, req model.BatchCheckRequest, storeID string, batch *filestore.Batch) error {
	zap.L().Info("ingestion batch completed",
		zap.String("domain", req.Context.Domain),
		zap.String("batch", batch.ID),
		zap.Int("files", batch.FileCounts.Completed),
	)
	if batch.FileCounts.Failed > 0 {
		zap.L().Warn("batch completed with failed files",
			zap.String("batch", batch.ID),
			zap.Int("failed", batch.FileCounts.Failed),
		)
	}

	continuation := model.MarketAnalysisRequest{
		Domain:        req.Context.Domain,
		LegalName:     req.Context.LegalName,
		Industries:    req.Context.Industries,
		Markets:       req.Context.Markets,
		StorageAreaID: storeID,
	}
	if err := continuation.Validate(); err != nil {
		// Context was submitted before the assessment landed; the customer
		// branch re-runs market analysis on its own.
		zap.L().Warn("batch context incomplete, skipping continuation",
			zap.String("domain", req.Context.Domain),
			zap.Error(err),
		)
		return nil
	}
	return s.queue.Publish(ctx, queue.TopicMarketAnalysis, continuation)
}

func (s *Service) reportBatch(ctx context.Context, kind monitoring.IncidentKind, req model.BatchCheckRequest, reason string, batch *filestore.Batch) error {
	details := map[string]string{
		"storageArea": req.StorageAreaName,
		"batchId":     req.BatchID,
	}
	if batch != nil {
		details["filesFailed"] = strconv.Itoa(batch.FileCounts.Failed)
		details["filesTotal"] = strconv.Itoa(batch.FileCounts.Total)
	}
	err := s.reporter.Report(ctx, monitoring.Incident{
		Kind:    kind,
		Subject: req.Context.Domain,
		Stage:   string(queue.TopicBatchCheck),
		Message: reason,
		Details: details,
	})
	if err != nil {
		zap.L().Error("incident report failed", zap.Error(err))
	}
	return nil
}
