package services

import (
	"context"
	"time"

	"github.com/yungbote/riskreview-backend/internal/clients/redis"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

// JobNotifier fans review job lifecycle changes out to downstream consumers.
// Delivery is best effort; pollers read the durable row.
type JobNotifier interface {
	JobCreated(job *types.ReviewJob)
	JobProgress(job *types.ReviewJob)
	JobCompleted(job *types.ReviewJob)
	JobFailed(job *types.ReviewJob)
}

// JobEventPublisher is satisfied by redis.JobBus.
type JobEventPublisher interface {
	Publish(ctx context.Context, ev redis.JobEvent) error
}

type jobNotifier struct {
	log *logger.Logger
	pub JobEventPublisher
}

// NewJobNotifier returns a notifier that publishes to pub. A nil pub yields a
// notifier that drops every event.
func NewJobNotifier(baseLog *logger.Logger, pub JobEventPublisher) JobNotifier {
	return &jobNotifier{log: baseLog.With("service", "JobNotifier"), pub: pub}
}

func (n *jobNotifier) JobCreated(job *types.ReviewJob) {
	n.emit(redis.EventJobCreated, job)
}

func (n *jobNotifier) JobProgress(job *types.ReviewJob) {
	n.emit(redis.EventJobProgress, job)
}

func (n *jobNotifier) JobCompleted(job *types.ReviewJob) {
	n.emit(redis.EventJobCompleted, job)
}

func (n *jobNotifier) JobFailed(job *types.ReviewJob) {
	n.emit(redis.EventJobFailed, job)
}

func (n *jobNotifier) emit(event string, job *types.ReviewJob) {
	if n == nil || n.pub == nil || job == nil {
		return
	}
	ev := redis.JobEvent{
		Event:       event,
		JobID:       job.ID.String(),
		Status:      job.Status,
		Progress:    job.Progress,
		Message:     job.ProgressMessage,
		RiskCount:   job.RiskCount,
		ErrorKind:   job.ErrorKind,
		ErrorReason: job.ErrorReason,
		At:          time.Now().UTC(),
	}
	if job.OwnerUserID != nil {
		ev.OwnerUserID = job.OwnerUserID.String()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.log.Warn("job event publish failed", "event", event, "job_id", ev.JobID, "error", err)
	}
}
