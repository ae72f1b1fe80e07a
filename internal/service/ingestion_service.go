package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/hiswaca/etl-console/internal/etl"
	"github.com/hiswaca/etl-console/internal/model"
)

var (
	ErrJobInProgress = errors.New("an ingestion job is already processing")
	ErrJobNotIdle    = errors.New("the previous job must be reset before a new submission")
	ErrJobNotFound   = errors.New("job not found")
)

// IngestionService keeps one ingestion job per user and runs submissions in the
// background.
type IngestionService struct {
	coord         *etl.Coordinator
	tracker       *etl.Tracker
	autoReset     time.Duration
	submitTimeout time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*etl.Job // by user
	owners map[string]string   // job id -> user
	timers map[string]*time.Timer
}

type IngestionOptions struct {
	Narrator      etl.Narrator
	Observer      etl.Observer
	AutoReset     time.Duration
	SubmitTimeout time.Duration
}

func NewIngestionService(coord *etl.Coordinator, opts IngestionOptions) *IngestionService {
	base, cancel := context.WithCancel(context.Background())
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &IngestionService{
		coord:         coord,
		tracker:       etl.NewTracker(coord, opts.Narrator, observer),
		autoReset:     opts.AutoReset,
		submitTimeout: opts.SubmitTimeout,
		base:          base,
		cancel:        cancel,
		jobs:          make(map[string]*etl.Job),
		owners:        make(map[string]string),
		timers:        make(map[string]*time.Timer),
	}
}

type noopObserver struct{}

func (noopObserver) JobChanged(model.IngestionJob)    {}
func (noopObserver) LineAppended(string, int, string) {}

// Catalog returns the selectable data models
func (s *IngestionService) Catalog() model.Catalog {
	return s.coord.Catalog()
}

// Submit validates cfg and starts a new job for userID. The returned snapshot is
// PROCESSING; the terminal state is published through the observer. ctx is only
// used for its values (forwarded credentials); the run outlives the request.
func (s *IngestionService) Submit(ctx context.Context, userID string, cfg model.IngestionJobConfig) (model.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base.Err() != nil {
		return model.IngestionJob{}, context.Canceled
	}

	if prev, ok := s.jobs[userID]; ok {
		switch prev.Status() {
		case model.IngestionProcessing:
			return prev.Snapshot(), ErrJobInProgress
		case model.IngestionDone, model.IngestionError:
			return prev.Snapshot(), ErrJobNotIdle
		}
	}

	job := etl.NewJob()
	run, err := s.tracker.Begin(job, cfg)
	if err != nil {
		return job.Snapshot(), err
	}

	if prev, ok := s.jobs[userID]; ok {
		delete(s.owners, prev.ID())
		s.stopTimerLocked(prev.ID())
	}
	s.jobs[userID] = job
	s.owners[job.ID()] = userID

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.submitTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	} else {
		runCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	stop := context.AfterFunc(s.base, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()

		snap := run.Execute(runCtx)
		if snap.Status == model.IngestionDone {
			s.scheduleReset(job, run.Attempt())
		}
	}()

	return job.Snapshot(), nil
}

// scheduleReset clears a DONE job after the configured delay unless something
// newer happened to it meanwhile.
func (s *IngestionService) scheduleReset(job *etl.Job, attempt uint64) {
	if s.autoReset <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		return
	}

	id := job.ID()
	s.stopTimerLocked(id)
	s.timers[id] = time.AfterFunc(s.autoReset, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		if job.ResetIfAttempt(attempt) {
			log.Printf("[ETL] job %s auto-reset after %v", id, s.autoReset)
		}
	})
}

func (s *IngestionService) stopTimerLocked(jobID string) {
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}

// Current returns the user's job, or an IDLE placeholder when there is none.
func (s *IngestionService) Current(userID string) model.IngestionJob {
	s.mu.Lock()
	job, ok := s.jobs[userID]
	s.mu.Unlock()

	if !ok {
		return model.IngestionJob{Status: model.IngestionIdle, LogLines: []string{}}
	}
	return job.Snapshot()
}

// Reset clears the user's job. An in-flight submission keeps running, but its
// result is discarded.
func (s *IngestionService) Reset(userID string) model.IngestionJob {
	s.mu.Lock()
	job, ok := s.jobs[userID]
	if ok {
		s.stopTimerLocked(job.ID())
	}
	s.mu.Unlock()

	if !ok {
		return model.IngestionJob{Status: model.IngestionIdle, LogLines: []string{}}
	}
	if job.Reset() {
		log.Printf("[ETL] job %s reset by user", job.ID())
	}
	return job.Snapshot()
}

// Lookup returns a job by id if it belongs to userID.
func (s *IngestionService) Lookup(userID, jobID string) (model.IngestionJob, error) {
	s.mu.Lock()
	owner, ok := s.owners[jobID]
	job := s.jobs[owner]
	s.mu.Unlock()

	if !ok || owner != userID || job == nil {
		return model.IngestionJob{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// Wait blocks until every started submission has reached a terminal state.
func (s *IngestionService) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight submissions and pending auto-resets, then waits for
// the background runs until ctx expires.
func (s *IngestionService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	for id := range s.timers {
		s.stopTimerLocked(id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
