package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/consol"
	"github.com/meridian-erp/meridian-erp/internal/consol/fx"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ConsolidationRunPayload configures the scope of a scheduled run.
// GroupID zero means every group; an empty period means the previous
// calendar month.
type ConsolidationRunPayload struct {
	GroupID int64  `json:"group_id"`
	Period  string `json:"period"`
}

// ConsolidationService is the slice of the consolidation service the job
// depends on.
type ConsolidationService interface {
	ListGroups(ctx context.Context, limit int) ([]consol.Group, error)
	CheckRates(ctx context.Context, groupID int64, period string) (fx.Result, error)
	RunConsolidation(ctx context.Context, groupID int64, in consol.RunInput) (consol.Run, error)
}

// ConsolidationRunJob executes scheduled consolidation runs.
type ConsolidationRunJob struct {
	Service ConsolidationService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewConsolidationRunJob constructs the job handler.
func NewConsolidationRunJob(service ConsolidationService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidationRunJob {
	return &ConsolidationRunJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// NewConsolidationRunTask creates an Asynq task for scheduled runs.
func NewConsolidationRunTask(groupID int64, period string) (*asynq.Task, error) {
	body, err := json.Marshal(ConsolidationRunPayload{GroupID: groupID, Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidationRun, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the consolidation run job. A group whose period was
// already consolidated, or whose run is in flight, is skipped quietly;
// missing rates are logged and counted but do not fail the other groups.
func (j *ConsolidationRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consolidation run: dependencies not configured")
	}
	var payload ConsolidationRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	period := payload.Period
	if period == "" {
		period = j.clock().AddDate(0, -1, 0).Format("2006-01")
	}

	tracker := j.metrics().Track(TaskConsolidationRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	groupIDs, err := j.resolveGroups(ctx, payload.GroupID)
	if err != nil {
		resultErr = err
		return resultErr
	}

	var failed int
	for _, groupID := range groupIDs {
		if err := j.runGroup(ctx, groupID, period); err != nil {
			failed++
		}
	}
	if failed > 0 {
		resultErr = errors.New("consolidation run: some groups failed")
	}
	return resultErr
}

func (j *ConsolidationRunJob) runGroup(ctx context.Context, groupID int64, period string) error {
	res, err := j.Service.CheckRates(ctx, groupID, period)
	if err == nil && len(res.Gaps) > 0 {
		j.metrics().AddRateGaps(groupID, len(res.Gaps))
		j.logger().Warn("consolidation run skipped, rates missing",
			slog.Int64("group_id", groupID),
			slog.String("period", period),
			slog.Int("gaps", len(res.Gaps)))
		return errors.New("missing rates")
	}

	_, err = j.Service.RunConsolidation(ctx, groupID, consol.RunInput{Period: period})
	switch {
	case err == nil:
		j.logger().Info("consolidation run completed",
			slog.Int64("group_id", groupID), slog.String("period", period))
		return nil
	case errors.Is(err, shared.ErrStateConflict):
		// Already consolidated or in flight.
		return nil
	default:
		j.logger().Error("consolidation run failed",
			slog.Int64("group_id", groupID),
			slog.String("period", period),
			slog.Any("error", err))
		return err
	}
}

func (j *ConsolidationRunJob) resolveGroups(ctx context.Context, groupID int64) ([]int64, error) {
	if groupID > 0 {
		return []int64{groupID}, nil
	}
	groups, err := j.Service.ListGroups(ctx, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func (j *ConsolidationRunJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *ConsolidationRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
