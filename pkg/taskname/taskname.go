package taskname

const (
	// Notification tasks
	NotificationDeliver = "notification:deliver"
)

// Queues, matching the weights configured on the worker.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
