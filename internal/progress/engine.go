// Package progress recomputes the cached progress percentages of a study and
// its parent project from task completion counts. It never owns a
// transaction: Recompute runs inside the caller's, so a task mutation and its
// progress update become visible atomically or not at all.
package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"researchhub/internal/store"
	"researchhub/pkg/metrics"
)

type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// round2 rounds half-up to two decimals, the precision progress is stored at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Recompute recalculates the study's progress from its task counts, then the
// parent project's progress as the mean of its studies' values.
// Administrative tasks attached directly to a project contribute to neither
// aggregate. Idempotent: with no intervening task mutation a second call
// stores identical values.
func (e *Engine) Recompute(ctx context.Context, tx store.Tx, studyID int) error {
	start := time.Now()
	defer func() {
		metrics.ProgressRecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	// Lock the study row first: concurrent completions in the same study
	// serialize here, so each recompute reads counts that include every
	// previously committed completion.
	study, err := tx.Studies().GetByIDForUpdate(ctx, studyID)
	if err != nil {
		return fmt.Errorf("recompute study %d: %w", studyID, err)
	}

	total, completed, err := tx.Tasks().CountByStudy(ctx, studyID)
	if err != nil {
		return fmt.Errorf("recompute study %d: %w", studyID, err)
	}

	studyProgress := 0.0
	if total > 0 {
		studyProgress = round2(100 * float64(completed) / float64(total))
	}
	if err := tx.Studies().UpdateProgress(ctx, studyID, studyProgress); err != nil {
		return fmt.Errorf("recompute study %d: %w", studyID, err)
	}

	values, err := tx.Projects().ListStudyProgress(ctx, study.ProjectID)
	if err != nil {
		return fmt.Errorf("recompute project %d: %w", study.ProjectID, err)
	}

	projectProgress := 0.0
	if len(values) > 0 {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		projectProgress = round2(sum / float64(len(values)))
	}
	if err := tx.Projects().UpdateProgress(ctx, study.ProjectID, projectProgress); err != nil {
		return fmt.Errorf("recompute project %d: %w", study.ProjectID, err)
	}

	e.logger.Debug("Progress recomputed",
		zap.Int("study_id", studyID),
		zap.Int("project_id", study.ProjectID),
		zap.Int("tasks_total", total),
		zap.Int("tasks_completed", completed),
		zap.Float64("study_progress", studyProgress),
		zap.Float64("project_progress", projectProgress),
	)
	return nil
}
