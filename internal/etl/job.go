package etl

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiswaca/etl-console/internal/model"
)

// ErrNotIdle is returned when a submission is started on a job that is not IDLE.
var ErrNotIdle = errors.New("job is not idle")

// Job is the runtime state of one ingestion submission. Every write made on behalf
// of a submission carries the attempt it was issued under; writes from an attempt
// that has since been reset are dropped.
//
// Applied changes are reported to the observer while the job lock is held, so
// subscribers see them in the order they were applied.
type Job struct {
	mu       sync.Mutex
	observer Observer

	id         string
	attempt    uint64
	status     model.IngestionStatus
	dataModel  *model.DataModel
	fileName   string
	fileSize   int64
	period     string
	visibility model.Visibility

	lines          []string
	processedCount *int
	artifactRef    *string
	errorMessage   *string

	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
}

// NewJob returns an IDLE job with a fresh id.
func NewJob() *Job {
	return &Job{
		id:        uuid.New().String(),
		observer:  nopObserver{},
		status:    model.IngestionIdle,
		createdAt: time.Now().UTC(),
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Status() model.IngestionStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Lines returns a copy of the narration log.
func (j *Job) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.lines...)
}

// Attempt returns the current attempt counter.
func (j *Job) Attempt() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempt
}

// Snapshot returns a copy safe to hand to readers.
func (j *Job) Snapshot() model.IngestionJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() model.IngestionJob {
	snap := model.IngestionJob{
		ID:         j.id,
		Status:     j.status,
		FileName:   j.fileName,
		FileSize:   j.fileSize,
		Period:     j.period,
		Visibility: j.visibility,
		LogLines:   append(make([]string, 0, len(j.lines)), j.lines...),
		CreatedAt:  j.createdAt,
	}
	if j.dataModel != nil {
		dm := *j.dataModel
		snap.DataModel = &dm
	}
	if j.processedCount != nil {
		n := *j.processedCount
		snap.ProcessedCount = &n
	}
	if j.artifactRef != nil {
		ref := *j.artifactRef
		snap.OutputArtifactRef = &ref
	}
	if j.errorMessage != nil {
		msg := *j.errorMessage
		snap.ErrorMessage = &msg
	}
	if j.startedAt != nil {
		t := *j.startedAt
		snap.StartedAt = &t
	}
	if j.completedAt != nil {
		t := *j.completedAt
		snap.CompletedAt = &t
	}
	return snap
}

// begin moves IDLE to PROCESSING and opens a new attempt. obs receives every
// change made from now on, including a later reset.
func (j *Job) begin(cfg model.IngestionJobConfig, dm model.DataModel, obs Observer) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != model.IngestionIdle {
		return 0, ErrNotIdle
	}

	now := time.Now().UTC()
	j.attempt++
	j.status = model.IngestionProcessing
	j.dataModel = &dm
	j.fileName = cfg.SourceFile.Name
	j.fileSize = cfg.SourceFile.Size
	j.period = cfg.Period
	j.visibility = model.VisibilityFromFlag(cfg.Public)
	j.lines = nil
	j.startedAt = &now
	if obs != nil {
		j.observer = obs
	}
	j.observer.JobChanged(j.snapshotLocked())
	return j.attempt, nil
}

// appendLine adds one narration line. It returns the line index, or false when the
// attempt is stale or the job already left PROCESSING.
func (j *Job) appendLine(attempt uint64, line string) (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.liveLocked(attempt) {
		return 0, false
	}
	j.lines = append(j.lines, line)
	idx := len(j.lines) - 1
	j.observer.LineAppended(j.id, idx, line)
	return idx, true
}

// succeed appends the closing lines and moves to DONE.
func (j *Job) succeed(attempt uint64, res *model.IngestionResult, closing []string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.liveLocked(attempt) {
		return false
	}
	first := len(j.lines)
	j.lines = append(j.lines, closing...)
	count := res.Count
	j.processedCount = &count
	if res.OutputFile != "" {
		ref := res.OutputFile
		j.artifactRef = &ref
	}
	j.finishLocked(model.IngestionDone)
	j.publishClosingLocked(first)
	return true
}

// fail appends the closing line and moves to ERROR.
func (j *Job) fail(attempt uint64, message string, closing []string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.liveLocked(attempt) {
		return false
	}
	first := len(j.lines)
	j.lines = append(j.lines, closing...)
	j.errorMessage = &message
	j.finishLocked(model.IngestionError)
	j.publishClosingLocked(first)
	return true
}

func (j *Job) liveLocked(attempt uint64) bool {
	return attempt == j.attempt && j.status == model.IngestionProcessing
}

// publishClosingLocked reports the lines from first on, then the terminal state.
func (j *Job) publishClosingLocked(first int) {
	for i := first; i < len(j.lines); i++ {
		j.observer.LineAppended(j.id, i, j.lines[i])
	}
	j.observer.JobChanged(j.snapshotLocked())
}

func (j *Job) finishLocked(status model.IngestionStatus) {
	now := time.Now().UTC()
	j.status = status
	j.completedAt = &now
}

// Reset returns the job to IDLE and clears everything scoped to the last attempt.
// Any in-flight submission becomes stale. Reset on an IDLE job does nothing and
// returns false.
func (j *Job) Reset() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resetLocked()
}

// ResetIfAttempt resets only when attempt is still the latest one and the job is
// terminal. Used by delayed resets that must not clobber a newer submission.
func (j *Job) ResetIfAttempt(attempt uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if attempt != j.attempt || !j.status.IsTerminal() {
		return false
	}
	return j.resetLocked()
}

func (j *Job) resetLocked() bool {
	if j.status == model.IngestionIdle {
		return false
	}
	j.attempt++
	j.status = model.IngestionIdle
	j.dataModel = nil
	j.fileName = ""
	j.fileSize = 0
	j.period = ""
	j.visibility = ""
	j.lines = nil
	j.processedCount = nil
	j.artifactRef = nil
	j.errorMessage = nil
	j.startedAt = nil
	j.completedAt = nil
	j.observer.JobChanged(j.snapshotLocked())
	return true
}
