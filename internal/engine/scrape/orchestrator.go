// Package scrape runs scraping jobs: a persisted state machine whose background
// execution searches a Source Connector term by term, scores every result and
// upserts the keepers into the catalog. Schedules create jobs on a cron clock.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/quality"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

// Source finds raw video records for one search term.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]engine.RawVideo, error)
}

// DetailFetcher fills fields a search result may lack. Optional on a Source.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, id string) (engine.RawVideoDetails, error)
}

// JobStore is the persistence the orchestrator needs. *store.DB satisfies it.
type JobStore interface {
	CreateJob(ctx context.Context, p engine.JobParams) (engine.Job, error)
	GetJob(ctx context.Context, id string) (engine.Job, error)
	ListJobs(ctx context.Context, f engine.JobFilter) (engine.JobList, error)
	TransitionJob(ctx context.Context, id string, to engine.JobStatus, opts store.TransitionOpts) (engine.Job, error)
	SetJobPlan(ctx context.Context, id string, total int) error
	SetCurrentTerm(ctx context.Context, id, term string) error
	AddJobCounters(ctx context.Context, id string, c engine.JobCounters) error
	RecordJobError(ctx context.Context, id, msg string) error
	AddJobLog(ctx context.Context, jobID, level, msg string) error
	ListJobLogs(ctx context.Context, jobID string, limit int) ([]engine.JobLogEntry, error)
	AddJobProgress(ctx context.Context, p engine.JobProgress) error
	ListJobProgress(ctx context.Context, jobID string) ([]engine.JobProgress, error)
	DeleteJob(ctx context.Context, id string) error
	DeleteJobsByStatus(ctx context.Context, status engine.JobStatus) (int, error)
	JobStats(ctx context.Context) (engine.JobStats, error)
	FailRunningJobs(ctx context.Context, reason string) ([]string, error)
	UpsertVideo(ctx context.Context, v engine.VideoRecord) error
}

// InterruptedReason is recorded on jobs found running at startup.
const InterruptedReason = "interrupted by restart"

const detailLogLimit = 100

// Options tune an Orchestrator. Zero limits fall back to engine.Cfg; a zero
// CourtesyDelay disables the delay.
type Options struct {
	CourtesyDelay  time.Duration
	MaxConcurrent  int
	MaxSearchTerms int
	Now            func() time.Time
}

// annotateFunc turns a raw record into a scored catalog record.
type annotateFunc func(v engine.RawVideo, tool engine.Tool, difficulty engine.Difficulty, now time.Time) (engine.VideoRecord, int)

// Orchestrator owns job lifecycle and background execution.
type Orchestrator struct {
	db       JobStore
	src      Source
	details  DetailFetcher
	scorer   *quality.Scorer
	annotate annotateFunc
	delay    time.Duration
	maxTerms int
	now      func() time.Time
	sem      *semaphore.Weighted

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	seq    uint64
	active map[string]uint64 // job id → token of the run executing it
}

// New builds an Orchestrator. src may also implement DetailFetcher.
func New(db JobStore, src Source, scorer *quality.Scorer, opts Options) *Orchestrator {
	if opts.CourtesyDelay < 0 {
		opts.CourtesyDelay = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = engine.Cfg.MaxConcurrentJobs
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxSearchTerms <= 0 {
		opts.MaxSearchTerms = engine.Cfg.MaxSearchTerms
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if scorer == nil {
		scorer = quality.Default()
	}
	base, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		db:       db,
		src:      src,
		scorer:   scorer,
		delay:    opts.CourtesyDelay,
		maxTerms: opts.MaxSearchTerms,
		now:      opts.Now,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		base:     base,
		stop:     stop,
		active:   make(map[string]uint64),
	}
	if df, ok := src.(DetailFetcher); ok {
		o.details = df
	}
	o.annotate = func(v engine.RawVideo, tool engine.Tool, d engine.Difficulty, now time.Time) (engine.VideoRecord, int) {
		rec, res := o.scorer.Annotate(v, tool, d, now)
		return rec, res.Overall
	}
	return o
}

// CreateRequest is the caller-facing input of Create. Zero limits take the configured defaults.
type CreateRequest struct {
	Name              string
	Tool              engine.Tool
	Difficulties      []engine.Difficulty
	MaxResultsPerTerm int
	MinQualityScore   *int
	JobType           string
	ScheduleID        string
}

// Create stores a pending job.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (engine.Job, error) {
	if req.Tool == "" {
		return engine.Job{}, engine.Validationf("tool is required")
	}
	p := engine.JobParams{
		Name:              req.Name,
		JobType:           req.JobType,
		Tool:              req.Tool,
		Difficulties:      req.Difficulties,
		MaxResultsPerTerm: req.MaxResultsPerTerm,
		MinQualityScore:   engine.Cfg.DefaultMinQuality,
		ScheduleID:        req.ScheduleID,
	}
	if len(p.Difficulties) == 0 {
		p.Difficulties = engine.Difficulties
	}
	if p.MaxResultsPerTerm == 0 {
		p.MaxResultsPerTerm = engine.Cfg.DefaultMaxPerTerm
	}
	if req.MinQualityScore != nil {
		p.MinQualityScore = *req.MinQualityScore
	}
	job, err := o.db.CreateJob(ctx, p)
	if err != nil {
		return job, err
	}
	slog.Info("scrape: job created", slog.String("job", job.ID), slog.String("tool", string(job.Tool)))
	return job, nil
}

// Start moves a pending or paused job to running and executes it in the
// background. It returns as soon as the transition is stored.
func (o *Orchestrator) Start(ctx context.Context, id string) (engine.Job, error) {
	job, err := o.db.TransitionJob(ctx, id, engine.JobRunning, store.TransitionOpts{})
	if err != nil {
		return job, err
	}
	engine.IncrJobsStarted()
	token, ok := o.claim(id)
	if !ok {
		// The previous run has not reached its next status check yet; it will
		// see running again and carry on.
		o.logJob(ctx, id, engine.LogInfo, "Job resumed")
		return job, nil
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(id, token)
		o.acquireAndRun(id, token)
	}()
	return job, nil
}

// claim registers a new run for id unless one is already executing it.
func (o *Orchestrator) claim(id string) (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[id]; busy {
		return 0, false
	}
	o.seq++
	o.active[id] = o.seq
	return o.seq, true
}

func (o *Orchestrator) release(id string, token uint64) {
	o.mu.Lock()
	if o.active[id] == token {
		delete(o.active, id)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) acquireAndRun(id string, token uint64) {
	ctx := o.base
	if !o.sem.TryAcquire(1) {
		o.logJob(ctx, id, engine.LogInfo, "Waiting for a free job slot")
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return
		}
	}
	defer o.sem.Release(1)
	if err := o.execute(ctx, id, token); err != nil {
		slog.Error("scrape: job aborted", slog.String("job", id), slog.Any("error", err))
	}
}

// Pause asks a running job to stop after its current search term.
func (o *Orchestrator) Pause(ctx context.Context, id string) (engine.Job, error) {
	job, err := o.db.TransitionJob(ctx, id, engine.JobPaused, store.TransitionOpts{})
	if err != nil {
		return job, err
	}
	o.logJob(ctx, id, engine.LogInfo, "Job paused")
	return job, nil
}

// Cancel stops a job for good. A term already in flight finishes first.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (engine.Job, error) {
	job, err := o.db.TransitionJob(ctx, id, engine.JobCancelled, store.TransitionOpts{})
	if err != nil {
		return job, err
	}
	engine.IncrJobsCancelled()
	o.logJob(ctx, id, engine.LogInfo, "Job cancelled")
	return job, nil
}

// Get returns a job with its latest log entries and per-term progress.
func (o *Orchestrator) Get(ctx context.Context, id string) (engine.JobDetail, error) {
	job, err := o.db.GetJob(ctx, id)
	if err != nil {
		return engine.JobDetail{}, err
	}
	logs, err := o.db.ListJobLogs(ctx, id, detailLogLimit)
	if err != nil {
		return engine.JobDetail{}, err
	}
	progress, err := o.db.ListJobProgress(ctx, id)
	if err != nil {
		return engine.JobDetail{}, err
	}
	return engine.JobDetail{Job: job, Logs: logs, Progress: progress}, nil
}

// List pages through jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, f engine.JobFilter) (engine.JobList, error) {
	return o.db.ListJobs(ctx, f)
}

// Delete removes a job that is not running, with its logs and progress. A
// paused or cancelled job whose last term is still in flight is refused until
// that run stops.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[id]; busy {
		return fmt.Errorf("%w: job %s is still finishing a search term", engine.ErrInvalidTransition, id)
	}
	return o.db.DeleteJob(ctx, id)
}

// DeleteByStatus removes every job in one terminal status.
func (o *Orchestrator) DeleteByStatus(ctx context.Context, status engine.JobStatus) (int, error) {
	return o.db.DeleteJobsByStatus(ctx, status)
}

// Stats counts jobs by status.
func (o *Orchestrator) Stats(ctx context.Context) (engine.JobStats, error) {
	return o.db.JobStats(ctx)
}

// Reconcile fails jobs left running by a previous process. Call once at
// startup, before any Start.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	ids, err := o.db.FailRunningJobs(ctx, InterruptedReason)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		slog.Warn("scrape: reconciled stale running jobs", slog.Int("count", len(ids)))
		for range ids {
			engine.IncrJobsFailed()
		}
	}
	return len(ids), nil
}

// Wait blocks until every background run has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops background runs at their next suspension point and waits for
// them. Jobs stay recorded as running and are reconciled on the next start.
func (o *Orchestrator) Shutdown() {
	o.stop()
	o.wg.Wait()
}

// RunSync creates a job and executes it on the calling goroutine.
func (o *Orchestrator) RunSync(ctx context.Context, req CreateRequest) (engine.Job, error) {
	job, err := o.Create(ctx, req)
	if err != nil {
		return job, err
	}
	if _, err := o.db.TransitionJob(ctx, job.ID, engine.JobRunning, store.TransitionOpts{}); err != nil {
		return job, err
	}
	engine.IncrJobsStarted()
	token, _ := o.claim(job.ID)
	defer o.release(job.ID, token)
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return job, err
	}
	defer o.sem.Release(1)
	if err := o.execute(ctx, job.ID, token); err != nil {
		return job, err
	}
	return o.db.GetJob(ctx, job.ID)
}

// logJob persists a job event and mirrors it to slog. Persistence failures are
// only logged; execute uses persistLog where they must abort the run.
func (o *Orchestrator) logJob(ctx context.Context, id, level, msg string) {
	if err := o.persistLog(ctx, id, level, msg); err != nil {
		slog.Warn("scrape: job log write failed", slog.String("job", id), slog.Any("error", err))
	}
}

func (o *Orchestrator) persistLog(ctx context.Context, id, level, msg string) error {
	attrs := []any{slog.String("job", id), slog.String("msg", msg)}
	switch level {
	case engine.LogError:
		slog.Error("scrape: job event", attrs...)
	case engine.LogWarning:
		slog.Warn("scrape: job event", attrs...)
	default:
		slog.Info("scrape: job event", attrs...)
	}
	return o.db.AddJobLog(ctx, id, level, msg)
}

// checkStatus re-reads the job between terms. It reports false once the job is
// no longer running; the run then leaves the active set under the lock, so a
// concurrent Start either finds it still active or spawns a fresh run.
func (o *Orchestrator) checkStatus(ctx context.Context, id string, token uint64) (bool, error) {
	job, err := o.db.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status == engine.JobRunning {
		return true, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	job, err = o.db.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status == engine.JobRunning {
		return true, nil
	}
	if o.active[id] == token {
		delete(o.active, id)
	}
	slog.Info("scrape: run stopped", slog.String("job", id), slog.String("status", string(job.Status)))
	return false, nil
}

// finish moves a running job to a terminal status. When a pause or cancel
// got there first it reports false, after releasing the job unless a resume
// flipped it back to running in the meantime, in which case it tries again.
func (o *Orchestrator) finish(ctx context.Context, id string, token uint64, to engine.JobStatus, opts store.TransitionOpts) (bool, error) {
	for {
		_, err := o.db.TransitionJob(ctx, id, to, opts)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, engine.ErrInvalidTransition) {
			return false, err
		}
		running, err := o.checkStatus(ctx, id, token)
		if err != nil || !running {
			return false, err
		}
	}
}

// fail records a fatal error on the job.
func (o *Orchestrator) fail(ctx context.Context, id string, token uint64, reason string) {
	_ = o.persistLog(ctx, id, engine.LogError, "Job failed: "+reason)
	ok, err := o.finish(ctx, id, token, engine.JobFailed, store.TransitionOpts{LastError: reason})
	if err != nil {
		slog.Error("scrape: could not mark job failed", slog.String("job", id), slog.Any("error", err))
		return
	}
	if ok {
		engine.IncrJobsFailed()
	}
}
