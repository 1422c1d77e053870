package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/lease"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LeaseSchedulePayload scopes the materialisation job. LeaseID zero
// sweeps every lease without a stored schedule.
type LeaseSchedulePayload struct {
	LeaseID int64 `json:"lease_id"`
}

// LeaseService is the slice of the lease service the job depends on.
type LeaseService interface {
	List(ctx context.Context, limit int) ([]lease.Lease, error)
	Schedule(ctx context.Context, leaseID int64) ([]lease.ScheduleEntry, error)
	GenerateSchedule(ctx context.Context, leaseID int64) ([]lease.ScheduleEntry, error)
}

// LeaseScheduleJob materialises amortization schedules in the background.
type LeaseScheduleJob struct {
	Service LeaseService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLeaseScheduleJob constructs the job handler.
func NewLeaseScheduleJob(service LeaseService, logger *slog.Logger, metrics *jobmetrics.Metrics) *LeaseScheduleJob {
	return &LeaseScheduleJob{Service: service, Logger: logger, Metrics: metrics}
}

// NewLeaseScheduleTask creates an Asynq task for schedule materialisation.
func NewLeaseScheduleTask(leaseID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LeaseSchedulePayload{LeaseID: leaseID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeaseSchedule, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the schedule materialisation job.
func (j *LeaseScheduleJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("lease schedule: dependencies not configured")
	}
	var payload LeaseSchedulePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLeaseSchedule)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids, err := j.resolveLeases(ctx, payload.LeaseID)
	if err != nil {
		resultErr = err
		return resultErr
	}

	var failed int
	for _, id := range ids {
		entries, err := j.Service.GenerateSchedule(ctx, id)
		switch {
		case err == nil:
			j.Metrics.AddScheduleEntries(id, len(entries))
			j.logger().Info("lease schedule materialised",
				slog.Int64("lease_id", id), slog.Int("entries", len(entries)))
		case errors.Is(err, shared.ErrStateConflict):
			// Schedule already exists or the lease is not recognized yet.
		default:
			failed++
			j.logger().Error("lease schedule failed",
				slog.Int64("lease_id", id), slog.Any("error", err))
		}
	}
	if failed > 0 {
		resultErr = errors.New("lease schedule: some leases failed")
	}
	return resultErr
}

func (j *LeaseScheduleJob) resolveLeases(ctx context.Context, leaseID int64) ([]int64, error) {
	if leaseID > 0 {
		return []int64{leaseID}, nil
	}
	leases, err := j.Service.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, l := range leases {
		entries, err := j.Service.Schedule(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

func (j *LeaseScheduleJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
