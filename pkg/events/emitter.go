// Package events handles event emission for filing and job lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Emitter publishes filing and job lifecycle events. A nil producer turns
// every emit into a no-op, so callers never have to branch on Kafka being
// enabled.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitArtifactRegistered emits an event for a newly registered artifact
func (e *Emitter) EmitArtifactRegistered(ctx context.Context, artifact *models.Artifact) {
	if e == nil || e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitArtifactRegistered")
	defer span.End()

	event := &kafka.FilingEvent{
		EventType:       "artifact.registered",
		CIK:             artifact.CIK,
		AccessionNumber: artifact.AccessionNumber,
		ArtifactID:      artifact.ID,
		Kind:            string(artifact.Kind),
		FormType:        artifact.FormType,
		SHA256:          artifact.SHA256,
	}

	if err := e.producer.PublishFilingEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit artifact.registered event")
	}
}

// EmitJobEnqueued emits an event for a newly enqueued parse job
func (e *Emitter) EmitJobEnqueued(ctx context.Context, job *models.ParseJob) {
	e.emitJob(ctx, "job.enqueued", job, "")
}

// EmitJobCompleted emits an event for a completed parse job
func (e *Emitter) EmitJobCompleted(ctx context.Context, job *models.ParseJob) {
	e.emitJob(ctx, "job.completed", job, "")
}

// EmitJobRequeued emits an event for a job going back to the queue after a failure
func (e *Emitter) EmitJobRequeued(ctx context.Context, job *models.ParseJob, lastError string) {
	e.emitJob(ctx, "job.requeued", job, lastError)
}

// EmitJobDeadlettered emits an event for a job that exhausted its retry budget
func (e *Emitter) EmitJobDeadlettered(ctx context.Context, job *models.ParseJob, lastError string) {
	e.emitJob(ctx, "job.deadlettered", job, lastError)
}

func (e *Emitter) emitJob(ctx context.Context, eventType string, job *models.ParseJob, lastError string) {
	if e == nil || e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emitJob")
	defer span.End()

	event := &kafka.JobEvent{
		EventType:    eventType,
		JobID:        job.ID,
		ArtifactID:   job.ArtifactID,
		Status:       string(job.Status),
		AttemptCount: job.AttemptCount,
		LastError:    lastError,
	}

	if err := e.producer.PublishJobEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
	}
}
