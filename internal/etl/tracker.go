package etl

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/hiswaca/etl-console/internal/model"
)

// Observer is notified of every applied job change. Calls for one job are made
// in order, but possibly from different goroutines, and with the job locked:
// implementations must not call back into the job.
type Observer interface {
	JobChanged(job model.IngestionJob)
	LineAppended(jobID string, index int, line string)
}

type nopObserver struct{}

func (nopObserver) JobChanged(model.IngestionJob)    {}
func (nopObserver) LineAppended(string, int, string) {}

// Tracker drives a Job through IDLE -> PROCESSING -> DONE|ERROR.
type Tracker struct {
	coord    *Coordinator
	narrator Narrator
	observer Observer
}

func NewTracker(coord *Coordinator, narrator Narrator, observer Observer) *Tracker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Tracker{coord: coord, narrator: narrator, observer: observer}
}

// Run is one started submission attempt.
type Run struct {
	tracker *Tracker
	job     *Job
	cfg     model.IngestionJobConfig
	dm      model.DataModel
	attempt uint64
}

// Begin validates cfg and moves job to PROCESSING. On a validation error the job
// stays IDLE and nothing is sent.
func (t *Tracker) Begin(job *Job, cfg model.IngestionJobConfig) (*Run, error) {
	dm, err := t.coord.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	attempt, err := job.begin(cfg, dm, t.observer)
	if err != nil {
		return nil, err
	}

	log.Printf("[ETL] job %s attempt %d -> PROCESSING (model=%s, file=%s)", job.ID(), attempt, dm.Code, cfg.SourceFile.Name)

	return &Run{tracker: t, job: job, cfg: cfg, dm: dm, attempt: attempt}, nil
}

// Submit is Begin followed by Execute.
func (t *Tracker) Submit(ctx context.Context, job *Job, cfg model.IngestionJobConfig) (model.IngestionJob, error) {
	run, err := t.Begin(job, cfg)
	if err != nil {
		return job.Snapshot(), err
	}
	return run.Execute(ctx), nil
}

func (r *Run) Attempt() uint64 {
	return r.attempt
}

func (r *Run) Job() *Job {
	return r.job
}

// Execute plays the narration and issues the request concurrently, then applies the
// terminal transition once both are finished. Results of a reset attempt are dropped.
func (r *Run) Execute(ctx context.Context) model.IngestionJob {
	t := r.tracker
	jobID := r.job.ID()

	var (
		result    *model.IngestionResult
		submitErr error
		g         errgroup.Group
	)

	g.Go(func() error {
		script := Script(r.dm, r.cfg.SourceFile.Name, r.cfg.Period)
		t.narrator.Play(ctx, script, func(line string) bool {
			_, ok := r.job.appendLine(r.attempt, line)
			return ok
		})
		return nil
	})
	g.Go(func() error {
		result, submitErr = t.coord.Submit(ctx, r.cfg)
		return nil
	})
	_ = g.Wait()

	var applied bool
	if submitErr == nil {
		closing := []string{SuccessLine(result.Count)}
		if result.OutputFile != "" {
			closing = append(closing, ArtifactLine(result.OutputFile))
		}
		applied = r.job.succeed(r.attempt, result, closing)
	} else {
		msg := failureMessage(submitErr)
		applied = r.job.fail(r.attempt, msg, []string{FailureLine(msg)})
	}

	if !applied {
		log.Printf("[ETL] job %s attempt %d: discarding stale result (err=%v)", jobID, r.attempt, submitErr)
		return r.job.Snapshot()
	}

	if submitErr != nil {
		log.Printf("[ETL] job %s attempt %d -> ERROR: %v", jobID, r.attempt, submitErr)
	} else {
		log.Printf("[ETL] job %s attempt %d -> DONE (count=%d)", jobID, r.attempt, result.Count)
	}
	return r.job.Snapshot()
}

func failureMessage(err error) string {
	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Message
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return err.Error()
}
