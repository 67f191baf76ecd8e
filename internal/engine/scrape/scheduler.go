package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// ScheduleStore is the persistence the scheduler needs. *store.DB satisfies it.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s engine.Schedule) (engine.Schedule, error)
	GetSchedule(ctx context.Context, id string) (engine.Schedule, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]engine.Schedule, error)
	SetScheduleActive(ctx context.Context, id string, active bool) (engine.Schedule, error)
	MarkScheduleRun(ctx context.Context, id string) error
	DeleteSchedule(ctx context.Context, id string) error
	DeleteDuplicateSchedules(ctx context.Context) (int, error)
}

// Scheduler fires active schedules on their cron expressions. Each firing
// creates a scheduled job and starts it.
type Scheduler struct {
	db   ScheduleStore
	orch *Orchestrator
	now  func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(db ScheduleStore, orch *Orchestrator) *Scheduler {
	return &Scheduler{
		db:      db,
		orch:    orch,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
	}
}

// ValidateCron checks a standard five-field expression (descriptors such as
// @daily are accepted too).
func ValidateCron(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return engine.Validationf("cron_expr is required")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return engine.Validationf("invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// ScheduleRequest is the input of Create. Zero limits take the configured defaults.
type ScheduleRequest struct {
	Name              string
	CronExpr          string
	Tool              engine.Tool
	Difficulties      []engine.Difficulty
	MaxResultsPerTerm int
	MinQualityScore   *int
	Inactive          bool
}

// List returns schedules, oldest first.
func (s *Scheduler) List(ctx context.Context, activeOnly bool) ([]engine.Schedule, error) {
	return s.db.ListSchedules(ctx, activeOnly)
}

// Create validates and stores a schedule, registering it when the scheduler runs.
func (s *Scheduler) Create(ctx context.Context, req ScheduleRequest) (engine.Schedule, error) {
	if err := ValidateCron(req.CronExpr); err != nil {
		return engine.Schedule{}, err
	}
	if req.Tool == "" {
		return engine.Schedule{}, engine.Validationf("tool is required")
	}
	sc := engine.Schedule{
		Name:              req.Name,
		CronExpr:          strings.TrimSpace(req.CronExpr),
		Tool:              req.Tool,
		IsActive:          !req.Inactive,
		Difficulties:      req.Difficulties,
		MaxResultsPerTerm: req.MaxResultsPerTerm,
		MinQualityScore:   engine.Cfg.DefaultMinQuality,
	}
	if sc.Name == "" {
		sc.Name = fmt.Sprintf("%s (%s)", sc.Tool.DisplayName(), sc.CronExpr)
	}
	if len(sc.Difficulties) == 0 {
		sc.Difficulties = engine.Difficulties
	}
	if sc.MaxResultsPerTerm <= 0 {
		sc.MaxResultsPerTerm = engine.Cfg.DefaultMaxPerTerm
	}
	if req.MinQualityScore != nil {
		sc.MinQualityScore = *req.MinQualityScore
	}
	if sc.MinQualityScore < 0 || sc.MinQualityScore > 100 {
		return engine.Schedule{}, engine.Validationf("min_quality_score must be in 0..100, got %d", sc.MinQualityScore)
	}
	created, err := s.db.CreateSchedule(ctx, sc)
	if err != nil {
		return created, err
	}
	slog.Info("scheduler: schedule created", slog.String("schedule", created.ID), slog.String("cron", created.CronExpr))
	return created, s.Reload(ctx)
}

// Toggle activates or deactivates a schedule.
func (s *Scheduler) Toggle(ctx context.Context, id string, active bool) (engine.Schedule, error) {
	sc, err := s.db.SetScheduleActive(ctx, id, active)
	if err != nil {
		return sc, err
	}
	return sc, s.Reload(ctx)
}

// Delete removes a schedule. Jobs it already created are kept.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// DeleteDuplicates keeps the oldest schedule per (cron_expr, tool).
func (s *Scheduler) DeleteDuplicates(ctx context.Context) (int, error) {
	n, err := s.db.DeleteDuplicateSchedules(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("scheduler: removed duplicate schedules", slog.Int("count", n))
	}
	return n, s.Reload(ctx)
}

// Start registers every active schedule and starts the cron clock.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return nil
	}
	s.cron = cron.New()
	s.mu.Unlock()
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.cron.Start()
	n := len(s.entries)
	s.mu.Unlock()
	slog.Info("scheduler: started", slog.Int("schedules", n))
	return nil
}

// Stop halts the clock and waits for firings in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.entries = make(map[string]cron.EntryID)
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Reload re-registers active schedules. A stopped scheduler ignores it.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	active, err := s.db.ListSchedules(ctx, true)
	if err != nil {
		return err
	}
	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	for _, sc := range active {
		id := sc.ID
		entry, err := s.cron.AddFunc(sc.CronExpr, func() { s.fireLogged(id) })
		if err != nil {
			slog.Warn("scheduler: skipping schedule", slog.String("schedule", id), slog.Any("error", err))
			continue
		}
		s.entries[id] = entry
	}
	return nil
}

func (s *Scheduler) fireLogged(id string) {
	if _, err := s.Fire(context.Background(), id); err != nil {
		slog.Error("scheduler: firing failed", slog.String("schedule", id), slog.Any("error", err))
	}
}

// Fire runs one schedule now: it creates a scheduled job and starts it. A
// schedule whose previous job is still pending, running or paused is skipped
// and returns an empty job.
func (s *Scheduler) Fire(ctx context.Context, id string) (engine.Job, error) {
	sc, err := s.db.GetSchedule(ctx, id)
	if err != nil {
		return engine.Job{}, err
	}
	if !sc.IsActive {
		return engine.Job{}, nil
	}
	prev, err := s.orch.db.ListJobs(ctx, engine.JobFilter{ScheduleID: id, Unfinished: true, Limit: 1})
	if err != nil {
		return engine.Job{}, err
	}
	if len(prev.Jobs) > 0 {
		slog.Info("scheduler: previous run still active", slog.String("schedule", id), slog.String("job", prev.Jobs[0].ID))
		return engine.Job{}, nil
	}

	minScore := sc.MinQualityScore
	job, err := s.orch.Create(ctx, CreateRequest{
		Name:              "Scheduled scrape - " + s.now().UTC().Format("2006-01-02 15:04"),
		Tool:              sc.Tool,
		Difficulties:      sc.Difficulties,
		MaxResultsPerTerm: sc.MaxResultsPerTerm,
		MinQualityScore:   &minScore,
		JobType:           engine.JobScheduled,
		ScheduleID:        sc.ID,
	})
	if err != nil {
		return job, err
	}
	if job, err = s.orch.Start(ctx, job.ID); err != nil {
		return job, err
	}
	if err := s.db.MarkScheduleRun(ctx, id); err != nil {
		return job, err
	}
	slog.Info("scheduler: schedule fired", slog.String("schedule", id), slog.String("job", job.ID))
	return job, nil
}
