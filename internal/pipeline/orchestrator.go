// Package pipeline runs the progressive transcription and analysis pipeline
// for uploaded recordings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/voicepipe/internal/analysis"
	"github.com/kiranshivaraju/voicepipe/internal/cache"
	"github.com/kiranshivaraju/voicepipe/internal/metrics"
	"github.com/kiranshivaraju/voicepipe/internal/store"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

var (
	ErrJobInProgress   = errors.New("analysis already in progress for this recording")
	ErrAlreadyAnalyzed = errors.New("recording has already been analyzed")
	ErrShuttingDown    = errors.New("pipeline is shutting down")
)

// Stage names used in logs and metrics.
const (
	StageTranscription = "transcription"
	StageQuick         = "quick_analysis"
	StageDeep          = "deep_analysis"
)

// Stages runs the three AI stages. *analysis.Executor implements it.
type Stages interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, durationSeconds int) (analysis.Transcript, error)
	QuickAnalyze(ctx context.Context, transcript, language string) (analysis.Parsed[analysis.QuickAnalysis], error)
	DeepAnalyze(ctx context.Context, transcript, language, recordingType string) (analysis.Parsed[analysis.DeepAnalysis], error)
}

// Submission is one recording handed to the pipeline. On a successful Submit
// the orchestrator takes ownership of Audio and releases it when the job ends.
type Submission struct {
	RecordingID     string
	UserID          string
	MimeType        string
	DurationSeconds int
	Audio           *TempAudio
}

// Orchestrator owns every running job. Each accepted submission runs on its
// own goroutine through transcription, quick analysis and deep analysis,
// persisting the record after every stage.
type Orchestrator struct {
	stages    Stages
	store     store.RecordStore
	cache     cache.Cache
	limiter   *Limiter
	statusTTL time.Duration
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
	closed  bool
}

// NewOrchestrator creates an Orchestrator. ca and m may be nil.
func NewOrchestrator(stages Stages, st store.RecordStore, ca cache.Cache, limiter *Limiter, statusTTL time.Duration, m *metrics.Metrics) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		stages:    stages,
		store:     st,
		cache:     ca,
		limiter:   limiter,
		statusTTL: statusTTL,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]struct{}),
	}
}

// Submit creates the recording in the processing state and dispatches the
// pipeline in the background. It returns as soon as the record exists.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*models.Recording, error) {
	if sub.RecordingID == "" {
		return nil, fmt.Errorf("invalid submission: recording ID is required")
	}
	if sub.Audio == nil {
		return nil, fmt.Errorf("invalid submission: audio is required")
	}

	if err := o.register(sub.RecordingID); err != nil {
		return nil, err
	}

	slot, err := o.limiter.Acquire()
	if err != nil {
		o.unregister(sub.RecordingID)
		o.wg.Done()
		o.metrics.IncCapacityRejected()
		slog.Warn("pipeline at capacity, rejecting recording",
			"recording_id", sub.RecordingID, "active", o.limiter.Active())
		return nil, err
	}
	o.metrics.SetActiveJobs(o.limiter.Active())

	now := time.Now().UTC()
	rec := &models.Recording{
		ID:              sub.RecordingID,
		UserID:          sub.UserID,
		MimeType:        sub.MimeType,
		DurationSeconds: sub.DurationSeconds,
		Status:          models.JobStatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.CreateRecording(ctx, rec); err != nil {
		slot.Release()
		o.metrics.SetActiveJobs(o.limiter.Active())
		o.unregister(sub.RecordingID)
		o.wg.Done()
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, o.duplicateError(ctx, sub.RecordingID)
		}
		return nil, fmt.Errorf("creating recording: %w", err)
	}

	o.metrics.RecordStatus(string(models.JobStatusProcessing))
	o.mirror(ctx, rec.ID, models.JobStatusProcessing)
	slog.Info("recording accepted", "recording_id", rec.ID, "user_id", rec.UserID, "bytes", sub.Audio.Size())

	go o.run(sub, slot)

	return rec, nil
}

// Shutdown stops accepting submissions and tells running jobs not to start
// their next stage. It waits for every job to finish or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of jobs currently holding a slot.
func (o *Orchestrator) Active() int {
	return o.limiter.Active()
}

// InProgress reports whether a job for id is running in this process.
func (o *Orchestrator) InProgress(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[id]
	return ok
}

func (o *Orchestrator) register(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrShuttingDown
	}
	if _, ok := o.running[id]; ok {
		return ErrJobInProgress
	}
	o.running[id] = struct{}{}
	o.wg.Add(1)
	return nil
}

func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	delete(o.running, id)
	o.mu.Unlock()
}

// duplicateError tells a finished recording apart from one that another
// process is still working on.
func (o *Orchestrator) duplicateError(ctx context.Context, id string) error {
	existing, err := o.store.GetRecording(ctx, id)
	if err == nil && existing.Status.IsTerminal() {
		return ErrAlreadyAnalyzed
	}
	return ErrJobInProgress
}

// run executes the pipeline for one submission. It recovers from panics and
// always releases the temp file, the registry entry and the slot.
func (o *Orchestrator) run(sub Submission, slot *Slot) {
	id := sub.RecordingID
	stage := models.JobStatusProcessing
	work := context.WithoutCancel(o.ctx)

	defer o.wg.Done()
	defer func() {
		slot.Release()
		o.metrics.SetActiveJobs(o.limiter.Active())
	}()
	defer o.unregister(id)
	defer sub.Audio.Release()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in pipeline job", "error", r, "recording_id", id, "stage", stage)
			o.fail(work, id, stage, fmt.Sprintf("panic: %v", r))
		}
	}()

	start := time.Now()
	o.process(sub, &stage)
	slog.Info("pipeline job finished", "recording_id", id, "last_stage", stage,
		"duration_ms", time.Since(start).Milliseconds())
}

func (o *Orchestrator) process(sub Submission, stage *models.JobStatus) {
	id := sub.RecordingID
	work := context.WithoutCancel(o.ctx)

	// Stage 1: transcription.
	*stage = models.JobStatusTranscribing
	zero := 0.0
	if err := o.write(work, id, models.Update{Status: models.JobStatusTranscribing, Progress: &zero}); err != nil {
		o.persistFailed(work, id, *stage, err)
		return
	}

	audio, err := sub.Audio.Bytes()
	if err != nil {
		o.fail(work, id, *stage, err.Error())
		return
	}

	began := time.Now()
	transcript, err := o.stages.Transcribe(work, audio, sub.MimeType, sub.DurationSeconds)
	o.observe(StageTranscription, began, err, true)
	if err != nil {
		slog.Error("transcription failed", "recording_id", id, "error", err)
		o.fail(work, id, *stage, fmt.Sprintf("transcription failed: %v", err))
		return
	}

	one := 1.0
	if err := o.write(work, id, models.Update{
		Status:     models.JobStatusTranscriptReady,
		Progress:   &one,
		Transcript: transcript.Fields(),
	}); err != nil {
		o.persistFailed(work, id, *stage, err)
		return
	}

	// Stage 2: quick analysis on the persisted transcript.
	*stage = models.JobStatusAnalyzingQuick
	if o.interrupted(work, id, *stage) {
		return
	}
	rec, err := o.store.GetRecording(work, id)
	if err != nil {
		o.persistFailed(work, id, *stage, fmt.Errorf("reading transcript: %w", err))
		return
	}
	if err := o.write(work, id, models.Update{
		Status:        models.JobStatusAnalyzingQuick,
		AnalysisStage: "Generating quick summary",
	}); err != nil {
		o.persistFailed(work, id, *stage, err)
		return
	}

	began = time.Now()
	quick, err := o.stages.QuickAnalyze(work, rec.TranscriptText, rec.Language)
	o.observe(StageQuick, began, err, quick.Structured())
	if err != nil {
		slog.Error("quick analysis failed", "recording_id", id, "error", err)
		o.fail(work, id, *stage, fmt.Sprintf("quick analysis failed: %v", err))
		return
	}

	preview := models.Update{Status: models.JobStatusPreviewReady, AnalysisStage: "Quick summary ready"}
	if quick.Structured() {
		preview.Quick = quick.Value.Fields()
	} else {
		slog.Warn("quick analysis output was not structured, keeping raw notes", "recording_id", id)
		preview.QuickNotes = quick.Raw
	}
	if err := o.write(work, id, preview); err != nil {
		o.persistFailed(work, id, *stage, err)
		return
	}

	// Stage 3: deep analysis, typed by the quick analysis.
	*stage = models.JobStatusAnalyzingDeep
	if o.interrupted(work, id, *stage) {
		return
	}
	rec, err = o.store.GetRecording(work, id)
	if err != nil {
		o.persistFailed(work, id, *stage, fmt.Errorf("reading preview: %w", err))
		return
	}
	if err := o.write(work, id, models.Update{
		Status:        models.JobStatusAnalyzingDeep,
		AnalysisStage: "Generating detailed analysis",
	}); err != nil {
		o.persistFailed(work, id, *stage, err)
		return
	}

	began = time.Now()
	deep, err := o.stages.DeepAnalyze(work, rec.TranscriptText, rec.Language, rec.AnalysisType)
	o.observe(StageDeep, began, err, deep.Structured())
	if err != nil {
		slog.Error("deep analysis failed", "recording_id", id, "error", err)
		o.fail(work, id, *stage, fmt.Sprintf("deep analysis failed: %v", err))
		return
	}

	done := models.Update{Status: models.JobStatusCompleted, AnalysisStage: "Analysis complete"}
	if deep.Structured() {
		done.Deep = deep.Value.Fields()
	} else {
		slog.Warn("deep analysis output was not structured, keeping raw notes", "recording_id", id)
		done.DeepNotes = deep.Raw
	}
	if err := o.write(work, id, done); err != nil {
		o.persistFailed(work, id, *stage, err)
		return
	}
	*stage = models.JobStatusCompleted
}

// write persists u and mirrors the new status to the cache.
func (o *Orchestrator) write(ctx context.Context, id string, u models.Update) error {
	if err := o.store.ApplyUpdate(ctx, id, u); err != nil {
		return fmt.Errorf("persisting %s: %w", u.Status, err)
	}
	o.metrics.RecordStatus(string(u.Status))
	o.mirror(ctx, id, u.Status)
	slog.Info("recording status updated", "recording_id", id, "status", u.Status)
	return nil
}

// fail records a terminal failure. Earlier stage fields are left in place.
func (o *Orchestrator) fail(ctx context.Context, id string, stage models.JobStatus, reason string) {
	err := o.write(ctx, id, models.Update{
		Status:      models.JobStatusFailed,
		Error:       reason,
		FailedStage: stage,
	})
	if err != nil {
		slog.Error("failed to record job failure", "recording_id", id, "stage", stage, "reason", reason, "error", err)
	}
}

func (o *Orchestrator) persistFailed(ctx context.Context, id string, stage models.JobStatus, err error) {
	slog.Error("persisting pipeline state failed, stopping job", "recording_id", id, "stage", stage, "error", err)
	o.fail(ctx, id, stage, fmt.Sprintf("persistence failed: %v", err))
}

// interrupted marks the job failed if Shutdown was called before stage starts.
func (o *Orchestrator) interrupted(ctx context.Context, id string, stage models.JobStatus) bool {
	if o.ctx.Err() == nil {
		return false
	}
	slog.Warn("pipeline interrupted by shutdown", "recording_id", id, "stage", stage)
	o.fail(ctx, id, stage, "interrupted")
	return true
}

func (o *Orchestrator) mirror(ctx context.Context, id string, status models.JobStatus) {
	if o.cache == nil {
		return
	}
	if err := o.cache.SetRecordingStatus(ctx, id, status, o.statusTTL); err != nil {
		slog.Warn("failed to cache recording status", "recording_id", id, "status", status, "error", err)
	}
}

func (o *Orchestrator) observe(stage string, began time.Time, err error, structured bool) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !structured:
		outcome = "fallback"
	}
	o.metrics.ObserveStage(stage, outcome, time.Since(began))
}
