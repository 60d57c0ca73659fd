package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRosterReconcile republishes a roster change event so synchronizers
	// that missed a pub/sub delivery reload their snapshot.
	TaskRosterReconcile = "roster:reconcile"
	// TaskSessionsPurge removes expired session rows from the database.
	TaskSessionsPurge = "sessions:purge"
)

// RosterReconcilePayload carries scheduling metadata for a reconcile run.
type RosterReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// SessionsPurgePayload marks the cutoff for expired session cleanup.
type SessionsPurgePayload struct {
	Before time.Time `json:"before"`
}

// NewRosterReconcileTask constructs an Asynq task for roster reconciliation.
func NewRosterReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RosterReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRosterReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewSessionsPurgeTask constructs an Asynq task for session cleanup.
func NewSessionsPurgeTask(before time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SessionsPurgePayload{Before: before})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, body, asynq.Queue(QueueDefault)), nil
}
