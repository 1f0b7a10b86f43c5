package qcflag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/metrics"
)

// Summaries of a run are cached under a per-run generation. Bumping the
// generation invalidates every cached summary variant of the run at once.

func runGenerationKey(runNumber int64) string {
	return fmt.Sprintf("qc:run:%d:generation", runNumber)
}

func gaqSummaryKey(generation string, dataPassID int64, runNumber int64, mcReproducibleAsNotBad bool) string {
	return fmt.Sprintf("qc:gaq:%s:dp:%d:run:%d:mcr:%t", generation, dataPassID, runNumber, mcReproducibleAsNotBad)
}

func (s *Service) runGeneration(ctx context.Context, runNumber int64) (string, bool) {
	key := runGenerationKey(runNumber)
	generation, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.Warn(ctx, "read cache generation failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return "", false
	}
	if found && generation != "" {
		return generation, true
	}

	generation = uuid.NewString()
	if err := s.cache.Set(ctx, key, generation, 0); err != nil {
		logging.Warn(ctx, "write cache generation failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return "", false
	}
	return generation, true
}

// invalidateRunBestEffort drops every cached summary of the given runs.
func (s *Service) invalidateRunBestEffort(ctx context.Context, runNumbers ...int64) {
	for _, runNumber := range runNumbers {
		key := runGenerationKey(runNumber)
		if err := s.cache.Delete(ctx, key); err != nil {
			logging.Warn(ctx, "invalidate run cache failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		}
	}
}

func (s *Service) cachedGaqSummary(ctx context.Context, key string) (GaqSummary, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.Warn(ctx, "read cached summary failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return GaqSummary{}, false
	}
	if !found {
		metrics.SummaryCacheTotal.WithLabelValues("miss").Inc()
		return GaqSummary{}, false
	}

	var summary GaqSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		logging.Warn(ctx, "decode cached summary failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return GaqSummary{}, false
	}
	metrics.SummaryCacheTotal.WithLabelValues("hit").Inc()
	return summary, true
}

func (s *Service) storeGaqSummaryBestEffort(ctx context.Context, key string, summary GaqSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		logging.Warn(ctx, "encode summary failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.opts.CacheTTL); err != nil {
		logging.Warn(ctx, "write cached summary failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
	}
}
