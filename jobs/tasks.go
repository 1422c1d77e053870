package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidationRun triggers consolidation runs for enrolled groups.
	TaskConsolidationRun = "consol:run"
	// TaskLeaseSchedule materialises missing amortization schedules.
	TaskLeaseSchedule = "lease:schedule"
)
