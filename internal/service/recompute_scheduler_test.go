package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/jobs"
)

type stubRecomputer struct {
	calls chan string
	err   error
}

func (s *stubRecomputer) RecomputeCurriculum(_ context.Context, curriculumID, _ string) (*dto.RecomputeResponse, error) {
	s.calls <- curriculumID
	if s.err != nil {
		return nil, s.err
	}
	return &dto.RecomputeResponse{CurriculumID: curriculumID}, nil
}

func TestRecomputeSchedulerRunsQueuedJob(t *testing.T) {
	recomputer := &stubRecomputer{calls: make(chan string, 1)}
	scheduler := NewRecomputeScheduler(recomputer, nil)
	queue := jobs.NewQueue("recompute", scheduler.Handle, jobs.QueueConfig{Workers: 1})
	scheduler.UseQueue(queue)
	queue.Start(context.Background())
	defer queue.Stop()

	job, err := scheduler.Schedule(context.Background(), " cur-1 ", "coord-1")
	require.NoError(t, err)
	assert.Equal(t, "cur-1", job.CurriculumID)
	assert.NotEmpty(t, job.JobID)

	select {
	case got := <-recomputer.calls:
		assert.Equal(t, "cur-1", got)
	case <-time.After(time.Second):
		t.Fatal("recompute did not run")
	}
}

func TestRecomputeSchedulerValidation(t *testing.T) {
	scheduler := NewRecomputeScheduler(&stubRecomputer{calls: make(chan string, 1)}, nil)

	_, err := scheduler.Schedule(context.Background(), "", "coord-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = scheduler.Schedule(context.Background(), "cur-1", "coord-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))

	scheduler.UseQueue(jobs.NewQueue("recompute", scheduler.Handle, jobs.QueueConfig{}))
	_, err = scheduler.Schedule(context.Background(), "cur-1", "coord-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestRecomputeSchedulerHandle(t *testing.T) {
	recomputer := &stubRecomputer{calls: make(chan string, 3)}
	scheduler := NewRecomputeScheduler(recomputer, nil)
	payload := recomputePayload{CurriculumID: "cur-1", ActorID: "coord-1"}

	require.NoError(t, scheduler.Handle(context.Background(), jobs.Job{ID: "j1", Payload: payload}))

	recomputer.err = appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
	assert.NoError(t, scheduler.Handle(context.Background(), jobs.Job{ID: "j2", Payload: payload}))

	recomputer.err = errors.New("db down")
	assert.Error(t, scheduler.Handle(context.Background(), jobs.Job{ID: "j3", Payload: payload}))

	assert.NoError(t, scheduler.Handle(context.Background(), jobs.Job{ID: "j4", Payload: "garbage"}))
}
