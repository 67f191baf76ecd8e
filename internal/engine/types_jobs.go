package engine

import "time"

// --- Scraping jobs ---

// JobStatus is a node of the job state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ParseJobStatus validates a status label.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobPending, JobRunning, JobPaused, JobCompleted, JobFailed, JobCancelled:
		return st, nil
	}
	return "", Validationf("unknown job status %q", s)
}

// transitions maps a target status to the statuses it may be entered from.
var transitions = map[JobStatus][]JobStatus{
	JobRunning:   {JobPending, JobPaused},
	JobPaused:    {JobRunning},
	JobCompleted: {JobRunning},
	JobFailed:    {JobRunning},
	JobCancelled: {JobPending, JobRunning, JobPaused},
}

// AllowedFrom returns the statuses from which to is reachable in one step.
func AllowedFrom(to JobStatus) []JobStatus {
	return transitions[to]
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Job types.
const (
	JobManual    = "manual"
	JobScheduled = "scheduled"
)

// Job is one controllable scraping run.
type Job struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	JobType              string       `json:"job_type"`
	Status               JobStatus    `json:"status"`
	Tool                 Tool         `json:"tool"`
	Difficulties         []Difficulty `json:"difficulties"`
	MaxResultsPerTerm    int          `json:"max_results_per_term"`
	MinQualityScore      int          `json:"min_quality_score"`
	ScheduleID           string       `json:"schedule_id,omitempty"`
	SearchTermsTotal     int          `json:"search_terms_total"`
	SearchTermsCompleted int          `json:"search_terms_completed"`
	VideosFound          int          `json:"videos_found"`
	VideosSaved          int          `json:"videos_saved"`
	VideosFiltered       int          `json:"videos_filtered"`
	CurrentSearchTerm    string       `json:"current_search_term,omitempty"`
	ErrorCount           int          `json:"error_count"`
	LastError            string       `json:"last_error,omitempty"`
	ResultSummary        string       `json:"result_summary,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	PausedAt             *time.Time   `json:"paused_at,omitempty"`
	ResumedAt            *time.Time   `json:"resumed_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
}

// JobParams is the validated input for job creation.
type JobParams struct {
	Name              string
	JobType           string
	Tool              Tool
	Difficulties      []Difficulty
	MaxResultsPerTerm int
	MinQualityScore   int
	ScheduleID        string
}

// JobCounters is an increment applied to a job's progress counters.
type JobCounters struct {
	TermsCompleted int
	Found          int
	Saved          int
	Filtered       int
	Errors         int
}

// JobFilter narrows a job listing.
type JobFilter struct {
	Status     JobStatus
	Tool       Tool
	ScheduleID string
	Unfinished bool // pending, running or paused only
	Limit      int
	Offset     int
}

// JobList is one page of jobs.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

// Log levels persisted with job log entries.
const (
	LogInfo    = "info"
	LogWarning = "warning"
	LogError   = "error"
)

// JobLogEntry is one append-only job event.
type JobLogEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress snapshot statuses.
const (
	TermDone   = "done"
	TermFailed = "failed"
)

// JobProgress records the outcome of one search term.
type JobProgress struct {
	JobID       string     `json:"job_id"`
	SearchTerm  string     `json:"search_term"`
	Difficulty  Difficulty `json:"difficulty"`
	Status      string     `json:"status"`
	VideosFound int        `json:"videos_found"`
	VideosSaved int        `json:"videos_saved"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// JobDetail is a job with its log tail and progress snapshots.
type JobDetail struct {
	Job      Job           `json:"job"`
	Logs     []JobLogEntry `json:"logs"`
	Progress []JobProgress `json:"progress"`
}

// JobStats summarises all jobs.
type JobStats struct {
	ByStatus    map[JobStatus]int `json:"by_status"`
	Total       int               `json:"total"`
	VideosSaved int               `json:"videos_saved"`
}

// --- Schedules ---

// Schedule is a recurring trigger that creates scheduled jobs.
type Schedule struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	CronExpr          string       `json:"cron_expr"`
	Tool              Tool         `json:"tool"`
	IsActive          bool         `json:"is_active"`
	Difficulties      []Difficulty `json:"difficulties"`
	MaxResultsPerTerm int          `json:"max_results_per_term"`
	MinQualityScore   int          `json:"min_quality_score"`
	LastRunAt         *time.Time   `json:"last_run_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}
