package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

// plannedTerm is one iteration of a job: a query and the labels its results get.
type plannedTerm struct {
	Term       string
	Tool       engine.Tool
	Difficulty engine.Difficulty
}

// plan lists a job's search terms in execution order. The order is stable, so
// a resumed run can skip the first completed_search_terms entries.
func (o *Orchestrator) plan(job engine.Job) []plannedTerm {
	var out []plannedTerm
	for _, tool := range engine.ExpandTool(job.Tool) {
		for _, d := range job.Difficulties {
			for _, term := range o.scorer.SearchTerms(tool, d, o.maxTerms) {
				out = append(out, plannedTerm{Term: term, Tool: tool, Difficulty: d})
			}
		}
	}
	return out
}

// maxErrorLen caps connector error text stored on progress rows and logs.
const maxErrorLen = 500

type termOutcome struct {
	found, saved, filtered, errors int
	searchErr                      error
}

func (o *Orchestrator) limiter() *rate.Limiter {
	if o.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(o.delay), 1)
}

// execute runs the remaining search terms of a running job. It returns nil
// when the job reached a terminal state or stopped on a pause/cancel; a
// non-nil error means the run was aborted.
func (o *Orchestrator) execute(ctx context.Context, id string, token uint64) error {
	// A job paused or cancelled while it waited for a slot never starts.
	running, err := o.checkStatus(ctx, id, token)
	if err != nil || !running {
		return err
	}
	job, err := o.db.GetJob(ctx, id)
	if err != nil {
		return err
	}
	terms := o.plan(job)
	if job.SearchTermsTotal != len(terms) {
		if err := o.db.SetJobPlan(ctx, id, len(terms)); err != nil {
			o.fail(ctx, id, token, err.Error())
			return err
		}
	}

	startAt := job.SearchTermsCompleted
	msg := fmt.Sprintf("Job started: %d search terms for %s", len(terms), job.Tool.DisplayName())
	if startAt > 0 {
		msg = fmt.Sprintf("Job resumed at search term %d of %d", startAt+1, len(terms))
	}
	if err := o.persistLog(ctx, id, engine.LogInfo, msg); err != nil {
		o.fail(ctx, id, token, err.Error())
		return err
	}

	lim := o.limiter()
	attempted, failed := 0, 0
	for i := startAt; i < len(terms); i++ {
		running, err := o.checkStatus(ctx, id, token)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		t := terms[i]
		if err := o.db.SetCurrentTerm(ctx, id, t.Term); err != nil {
			o.fail(ctx, id, token, err.Error())
			return err
		}

		started := o.now()
		out, err := o.runTerm(ctx, lim, job, t)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.fail(ctx, id, token, err.Error())
			return err
		}
		attempted++

		progress := engine.JobProgress{
			JobID:       id,
			SearchTerm:  t.Term,
			Difficulty:  t.Difficulty,
			Status:      engine.TermDone,
			VideosFound: out.found,
			VideosSaved: out.saved,
			StartedAt:   started,
			FinishedAt:  o.now(),
		}
		counters := engine.JobCounters{
			TermsCompleted: 1,
			Found:          out.found,
			Saved:          out.saved,
			Filtered:       out.filtered,
			Errors:         out.errors,
		}
		if out.searchErr != nil {
			failed++
			counters.Errors++
			progress.Status = engine.TermFailed
			progress.Error = engine.TruncateAtWord(out.searchErr.Error(), maxErrorLen)
			msg := fmt.Sprintf("Search term %q failed: %s", t.Term, progress.Error)
			if err := o.persistLog(ctx, id, engine.LogWarning, msg); err != nil {
				o.fail(ctx, id, token, err.Error())
				return err
			}
			if err := o.db.RecordJobError(ctx, id, msg); err != nil {
				o.fail(ctx, id, token, err.Error())
				return err
			}
		}
		if err := o.db.AddJobCounters(ctx, id, counters); err != nil {
			o.fail(ctx, id, token, err.Error())
			return err
		}
		if err := o.db.AddJobProgress(ctx, progress); err != nil {
			o.fail(ctx, id, token, err.Error())
			return err
		}
	}

	if attempted > 0 && failed == attempted {
		o.fail(ctx, id, token, fmt.Sprintf("all %d search terms failed", attempted))
		return nil
	}
	return o.complete(ctx, id, token)
}

// runTerm searches one term and files every result. Only errors that should
// end the job are returned; a failed search is reported in the outcome.
func (o *Orchestrator) runTerm(ctx context.Context, lim *rate.Limiter, job engine.Job, t plannedTerm) (termOutcome, error) {
	var out termOutcome
	if err := lim.Wait(ctx); err != nil {
		return out, err
	}
	var videos []engine.RawVideo
	err := engine.TrackOperation(ctx, "search "+t.Term, func(ctx context.Context) error {
		var err error
		videos, err = o.src.Search(ctx, t.Term, job.MaxResultsPerTerm)
		return err
	})
	if err != nil {
		if errors.Is(err, engine.ErrSourceUnavailable) || ctx.Err() != nil {
			return out, err
		}
		out.searchErr = err
		return out, nil
	}
	if len(videos) > job.MaxResultsPerTerm {
		videos = videos[:job.MaxResultsPerTerm]
	}
	out.found = len(videos)
	engine.IncrVideosFound(len(videos))

	for _, v := range videos {
		if o.details != nil && v.ExternalID != "" && v.NeedsDetails() {
			if err := lim.Wait(ctx); err != nil {
				return out, err
			}
			d, err := o.details.FetchDetails(ctx, v.ExternalID)
			if err != nil {
				slog.Debug("scrape: details unavailable", slog.String("video", v.ExternalID), slog.Any("error", err))
			} else {
				v.Merge(d)
			}
		}
		rec, score := o.annotate(v, t.Tool, t.Difficulty, o.now())
		if score < job.MinQualityScore {
			out.filtered++
			engine.IncrVideosFiltered()
			continue
		}
		if err := o.db.UpsertVideo(ctx, rec); err != nil {
			out.errors++
			engine.IncrUpsertErrors()
			o.logJob(ctx, job.ID, engine.LogWarning, fmt.Sprintf("Could not save video %s: %v", v.ExternalID, err))
			continue
		}
		out.saved++
		engine.IncrVideosSaved()
	}
	return out, nil
}

// complete marks a finished run completed. A job paused or cancelled while its
// last term ran keeps that status.
func (o *Orchestrator) complete(ctx context.Context, id string, token uint64) error {
	job, err := o.db.GetJob(ctx, id)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("Processed %d search terms: %d videos found, %d saved, %d filtered",
		job.SearchTermsCompleted, job.VideosFound, job.VideosSaved, job.VideosFiltered)
	ok, err := o.finish(ctx, id, token, engine.JobCompleted, store.TransitionOpts{Summary: summary})
	if err != nil || !ok {
		return err
	}
	engine.IncrJobsCompleted()
	o.logJob(ctx, id, engine.LogInfo, "Job completed. "+summary)
	return nil
}
