package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/jobs"
)

type curriculumSummaryRecomputer interface {
	RecomputeCurriculum(ctx context.Context, curriculumID, actorID string) (*dto.RecomputeResponse, error)
}

type jobSubmitter interface {
	Submit(job jobs.Job) (string, bool, error)
}

type recomputePayload struct {
	CurriculumID string
	ActorID      string
}

// RecomputeScheduler runs curriculum summary recomputes in the background.
type RecomputeScheduler struct {
	summaries curriculumSummaryRecomputer
	queue     jobSubmitter
	logger    *zap.Logger
}

// NewRecomputeScheduler constructs a scheduler. Attach a queue with UseQueue
// before scheduling.
func NewRecomputeScheduler(summaries curriculumSummaryRecomputer, logger *zap.Logger) *RecomputeScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeScheduler{summaries: summaries, logger: logger}
}

// UseQueue sets the queue jobs are submitted to.
func (s *RecomputeScheduler) UseQueue(queue jobSubmitter) {
	s.queue = queue
}

// Handle is the queue handler executing one recompute job.
func (s *RecomputeScheduler) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(recomputePayload)
	if !ok {
		s.logger.Error("unexpected recompute payload", zap.String("job_id", job.ID))
		return nil
	}
	resp, err := s.summaries.RecomputeCurriculum(ctx, payload.CurriculumID, payload.ActorID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			s.logger.Warn("recompute skipped, curriculum missing", zap.String("job_id", job.ID), zap.String("curriculum_id", payload.CurriculumID))
			return nil
		}
		return err
	}
	s.logger.Info("background recompute finished",
		zap.String("job_id", job.ID),
		zap.String("curriculum_id", payload.CurriculumID),
		zap.Int("assignments_updated", resp.AssignmentsUpdated),
	)
	return nil
}

// Schedule queues a recompute for the curriculum. A recompute already waiting
// for the same curriculum absorbs the request.
func (s *RecomputeScheduler) Schedule(_ context.Context, curriculumID, actorID string) (*dto.RecomputeJobResponse, error) {
	curriculumID = strings.TrimSpace(curriculumID)
	if curriculumID == "" || strings.TrimSpace(actorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "curriculumId and actorId are required")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "recompute queue unavailable")
	}
	id, coalesced, err := s.queue.Submit(jobs.Job{
		ID:      uuid.NewString(),
		Key:     curriculumID,
		Payload: recomputePayload{CurriculumID: curriculumID, ActorID: actorID},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue recompute")
	}
	s.logger.Debug("recompute queued", zap.String("job_id", id), zap.String("curriculum_id", curriculumID), zap.Bool("coalesced", coalesced))
	return &dto.RecomputeJobResponse{JobID: id, CurriculumID: curriculumID, Coalesced: coalesced}, nil
}
