package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/services"
)

// ErrNotProcessing is returned when a write is rejected because the job has
// left the processing state (ignored by an admin, failed, or completed).
var ErrNotProcessing = errors.New("job is no longer processing")

/*
Context is the execution handle for one claimed review job.
It wraps:
  - the request-scoped context.Context (deadline, cancellation)
  - the DB handle used for the short persistence transactions
  - the review_job row as last written by this worker
  - the only sanctioned ways to report progress, append risks or finish

Pipelines never write review_job directly. Every write goes through a
status-guarded update so a terminal row is never touched again.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.ReviewJob
	Jobs   repos.ReviewJobRepo
	Risks  repos.ReviewRiskRepo
	Notify services.JobNotifier
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.ReviewJob, jobs repos.ReviewJobRepo, risks repos.ReviewRiskRepo, notify services.JobNotifier) *Context {
	return &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Jobs:   jobs,
		Risks:  risks,
		Notify: notify,
	}
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

/*
Progress persists a non-terminal progress step.
  - The write is rejected unless the row is processing and progress does not
    move backwards.
  - extra carries counters such as total_chunks.
Returns ErrNotProcessing when the row has left processing.
*/
func (c *Context) Progress(progress int, msg string, extra map[string]interface{}) error {
	ok, err := c.Jobs.AdvanceProgress(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, progress, msg, extra)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotProcessing
	}
	c.applyProgress(progress, msg, extra)
	if c.Notify != nil {
		c.Notify.JobProgress(c.Job)
	}
	return nil
}

/*
AppendRisks inserts a chunk's risks and advances progress in one transaction:
  - guard on status=processing (and monotone progress) first, so an ignored
    job takes no further rows
  - assign seq after the highest persisted seq
  - recompute risk_count from the child rows
A poll therefore never sees risk_count disagree with the risk rows.
*/
func (c *Context) AppendRisks(risks []*types.ReviewRisk, progress int, msg string, extra map[string]interface{}) error {
	var riskCount int
	err := c.DB.WithContext(c.ctx()).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: c.ctx(), Tx: tx}
		ok, err := c.Jobs.AdvanceProgress(dbc, c.Job.ID, progress, msg, extra)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotProcessing
		}
		if len(risks) > 0 {
			next, err := c.Risks.NextSeq(dbc, c.Job.ID)
			if err != nil {
				return err
			}
			for i, r := range risks {
				r.JobID = c.Job.ID
				r.Seq = next + i
			}
			if _, err := c.Risks.Create(dbc, risks); err != nil {
				return err
			}
		}
		riskCount, err = c.Jobs.RecountRisks(dbc, c.Job.ID)
		return err
	})
	if err != nil {
		return err
	}
	c.applyProgress(progress, msg, extra)
	c.Job.RiskCount = riskCount
	if c.Notify != nil {
		c.Notify.JobProgress(c.Job)
	}
	return nil
}

// Classify records the document category chosen before the audit starts.
func (c *Context) Classify(category, reason string) error {
	now := time.Now().UTC()
	ok, err := c.Jobs.UpdateFieldsIfStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{types.StatusProcessing}, map[string]interface{}{
		"category":        category,
		"category_reason": reason,
		"updated_at":      now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotProcessing
	}
	c.Job.Category = category
	c.Job.CategoryReason = reason
	return nil
}

/*
Complete moves processing -> completed with progress forced to 100.
risk_count is recomputed inside the same transaction so the terminal row
always agrees with the persisted risks. alert may be nil.
*/
func (c *Context) Complete(summary string, severityCounts map[string]int, alert *types.RadarAlert) error {
	now := time.Now().UTC()
	var counts datatypes.JSON
	if severityCounts != nil {
		b, _ := json.Marshal(severityCounts)
		counts = datatypes.JSON(b)
	}
	var radar datatypes.JSON
	if alert != nil {
		b, _ := json.Marshal(alert)
		radar = datatypes.JSON(b)
	}
	var riskCount int
	err := c.DB.WithContext(c.ctx()).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: c.ctx(), Tx: tx}
		n, err := c.Jobs.RecountRisks(dbc, c.Job.ID)
		if err != nil {
			return err
		}
		riskCount = n
		ok, err := c.Jobs.UpdateFieldsIfStatus(dbc, c.Job.ID, []string{types.StatusProcessing}, map[string]interface{}{
			"status":           types.StatusCompleted,
			"progress":         100,
			"progress_message": "review completed",
			"summary":          summary,
			"severity_counts":  counts,
			"radar_alert":      radar,
			"finished_at":      now,
			"locked_at":        nil,
			"heartbeat_at":     now,
			"updated_at":       now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotProcessing
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.Job.Status = types.StatusCompleted
	c.Job.Progress = 100
	c.Job.ProgressMessage = "review completed"
	c.Job.Summary = summary
	c.Job.SeverityCounts = counts
	c.Job.RadarAlert = radar
	c.Job.RiskCount = riskCount
	c.Job.FinishedAt = &now
	c.Job.LockedAt = nil
	if c.Notify != nil {
		c.Notify.JobCompleted(c.Job)
	}
	return nil
}

/*
Fail moves processing -> failed and records why. Risks already persisted are
kept. The message shown to pollers is reason itself.
It uses a fresh context when the job context is already done, so a timeout
can still be recorded.
*/
func (c *Context) Fail(kind string, reason string) error {
	ctx := c.ctx()
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	now := time.Now().UTC()
	dbc := dbctx.Context{Ctx: ctx}
	riskCount, err := c.Jobs.RecountRisks(dbc, c.Job.ID)
	if err != nil {
		return err
	}
	ok, err := c.Jobs.UpdateFieldsIfStatus(dbc, c.Job.ID, []string{types.StatusProcessing}, map[string]interface{}{
		"status":           types.StatusFailed,
		"error_kind":       kind,
		"error_reason":     reason,
		"progress_message": reason,
		"finished_at":      now,
		"locked_at":        nil,
		"updated_at":       now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotProcessing
	}
	c.Job.Status = types.StatusFailed
	c.Job.ErrorKind = kind
	c.Job.ErrorReason = reason
	c.Job.ProgressMessage = reason
	c.Job.RiskCount = riskCount
	c.Job.FinishedAt = &now
	c.Job.LockedAt = nil
	if c.Notify != nil {
		c.Notify.JobFailed(c.Job)
	}
	return nil
}

// Heartbeat refreshes heartbeat_at so the row is not reclaimed as stale.
func (c *Context) Heartbeat(ctx context.Context) (bool, error) {
	return c.Jobs.Heartbeat(dbctx.Context{Ctx: ctx}, c.Job.ID)
}

// ExistingRisks lists the risks persisted so far, for resuming a reclaimed job.
func (c *Context) ExistingRisks() ([]*types.ReviewRisk, error) {
	return c.Risks.ListByJob(dbctx.Context{Ctx: c.ctx()}, c.Job.ID)
}

func (c *Context) JobID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ID
}

func (c *Context) applyProgress(progress int, msg string, extra map[string]interface{}) {
	now := time.Now().UTC()
	c.Job.Progress = progress
	c.Job.ProgressMessage = msg
	c.Job.HeartbeatAt = &now
	for k, v := range extra {
		n, ok := v.(int)
		if !ok {
			continue
		}
		switch k {
		case "total_chunks":
			c.Job.TotalChunks = n
		case "processed_chunks":
			c.Job.ProcessedChunks = n
		case "failed_chunks":
			c.Job.FailedChunks = n
		}
	}
}
