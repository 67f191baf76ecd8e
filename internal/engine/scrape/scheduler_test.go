package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr string
		ok   bool
	}{
		{"0 3 * * *", true},
		{"*/15 * * * 1-5", true},
		{"@daily", true},
		{"", false},
		{"every day", false},
		{"0 3 * *", false},
		{"61 * * * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if tt.ok && err != nil {
				t.Errorf("ValidateCron(%q) = %v", tt.expr, err)
			}
			if !tt.ok && !errors.Is(err, engine.ErrValidation) {
				t.Errorf("ValidateCron(%q) = %v, want validation error", tt.expr, err)
			}
		})
	}
}

func newTestScheduler(t *testing.T, src Source) (*Scheduler, *Orchestrator) {
	t.Helper()
	o, db := newTestOrchestrator(t, src, 1)
	s := NewScheduler(db, o)
	t.Cleanup(s.Stop)
	return s, o
}

func TestScheduler_CreateValidates(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeSource{})
	ctx := context.Background()

	_, err := s.Create(ctx, ScheduleRequest{CronExpr: "not cron", Tool: engine.ToolZapier})
	assert.True(t, errors.Is(err, engine.ErrValidation))
	_, err = s.Create(ctx, ScheduleRequest{CronExpr: "0 3 * * *"})
	assert.True(t, errors.Is(err, engine.ErrValidation))

	sc, err := s.Create(ctx, ScheduleRequest{CronExpr: "0 3 * * *", Tool: engine.ToolN8N})
	require.NoError(t, err)
	assert.True(t, sc.IsActive)
	assert.Equal(t, engine.Difficulties, sc.Difficulties)
	assert.Equal(t, "n8n (0 3 * * *)", sc.Name)
}

func TestScheduler_FireCreatesScheduledJob(t *testing.T) {
	src, entered, release := gatedSource()
	s, o := newTestScheduler(t, src)
	ctx := context.Background()

	sc, err := s.Create(ctx, ScheduleRequest{
		CronExpr:     "0 */6 * * *",
		Tool:         engine.ToolMake,
		Difficulties: []engine.Difficulty{engine.Intermediate},
	})
	require.NoError(t, err)

	job, err := s.Fire(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.JobScheduled, job.JobType)
	assert.Equal(t, sc.ID, job.ScheduleID)
	assert.Equal(t, engine.JobRunning, job.Status)
	assert.True(t, strings.HasPrefix(job.Name, "Scheduled scrape - "), job.Name)
	assert.Equal(t, []engine.Difficulty{engine.Intermediate}, job.Difficulties)
	<-entered

	skipped, err := s.Fire(ctx, sc.ID)
	require.NoError(t, err)
	assert.Empty(t, skipped.ID, "previous run still active")

	close(release)
	o.Wait()

	again, err := s.Fire(ctx, sc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, again.ID)
	assert.NotEqual(t, job.ID, again.ID)
	o.Wait()

	got, err := s.db.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
}

func TestScheduler_InactiveDoesNotFire(t *testing.T) {
	s, o := newTestScheduler(t, &fakeSource{})
	ctx := context.Background()

	sc, err := s.Create(ctx, ScheduleRequest{CronExpr: "@hourly", Tool: engine.ToolZapier, Inactive: true})
	require.NoError(t, err)

	job, err := s.Fire(ctx, sc.ID)
	require.NoError(t, err)
	assert.Empty(t, job.ID)

	list, err := o.List(ctx, engine.JobFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestScheduler_StartReloadStop(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeSource{})
	ctx := context.Background()

	a, err := s.Create(ctx, ScheduleRequest{CronExpr: "0 1 * * *", Tool: engine.ToolZapier})
	require.NoError(t, err)
	_, err = s.Create(ctx, ScheduleRequest{CronExpr: "0 2 * * *", Tool: engine.ToolN8N})
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.entries, 2)

	_, err = s.Toggle(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Len(t, s.entries, 1)
	_, ok := s.entries[a.ID]
	assert.False(t, ok)

	_, err = s.Create(ctx, ScheduleRequest{CronExpr: "0 3 * * *", Tool: engine.ToolMake})
	require.NoError(t, err)
	assert.Len(t, s.entries, 2)

	s.Stop()
	assert.Empty(t, s.entries)
	assert.True(t, errors.Is(s.Delete(ctx, "missing"), engine.ErrNotFound))
}

func TestScheduler_DeleteDuplicates(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeSource{})
	ctx := context.Background()

	first, err := s.Create(ctx, ScheduleRequest{CronExpr: "0 4 * * *", Tool: engine.ToolZapier})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := s.Create(ctx, ScheduleRequest{CronExpr: "0 4 * * *", Tool: engine.ToolZapier})
		require.NoError(t, err)
	}
	_, err = s.Create(ctx, ScheduleRequest{CronExpr: "0 4 * * *", Tool: engine.ToolN8N})
	require.NoError(t, err)

	n, err := s.DeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, first.ID, left[0].ID)
}

func TestScheduler_SkipsUnfinishedJobAfterRestart(t *testing.T) {
	s, o := newTestScheduler(t, &fakeSource{})
	ctx := context.Background()

	sc, err := s.Create(ctx, ScheduleRequest{CronExpr: "0 5 * * *", Tool: engine.ToolN8N})
	require.NoError(t, err)
	left, err := o.Create(ctx, CreateRequest{Tool: engine.ToolN8N, JobType: engine.JobScheduled, ScheduleID: sc.ID})
	require.NoError(t, err)

	restarted := NewScheduler(s.db, o)
	t.Cleanup(restarted.Stop)

	job, err := restarted.Fire(ctx, sc.ID)
	require.NoError(t, err)
	assert.Empty(t, job.ID, "pending job from before the restart blocks the firing")

	_, err = o.Cancel(ctx, left.ID)
	require.NoError(t, err)
	job, err = restarted.Fire(ctx, sc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.NotEqual(t, left.ID, job.ID)
	o.Wait()
}
