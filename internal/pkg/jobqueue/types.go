package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeSendEmail JobType = "send_email"
	JobTypeSendPush  JobType = "send_push"
	JobTypeCRMSync   JobType = "crm_sync"
)

// JobStatus is where a delivery job is in its lifecycle
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusRetrying   JobStatus = "retrying"
	// JobStatusDead jobs exhausted their attempts and sit in the dead list.
	JobStatusDead JobStatus = "dead"
)

// Job is one queued delivery: an email, a push fan-out or a CRM sync.
type Job struct {
	ID            string                 `json:"id"`
	Type          JobType                `json:"type"`
	Status        JobStatus              `json:"status"`
	Payload       map[string]interface{} `json:"payload"`
	Attempts      int                    `json:"attempts"`
	MaxAttempts   int                    `json:"max_attempts"`
	LastError     string                 `json:"last_error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
}

// SendEmailJobPayload contains the payload for transactional email jobs
type SendEmailJobPayload struct {
	To       []string               `json:"to"`
	Subject  string                 `json:"subject"`
	Template string                 `json:"template"` // template name without extension
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p SendEmailJobPayload) ToMap() map[string]interface{} {
	return toMap(p)
}

func SendEmailJobPayloadFromMap(data map[string]interface{}) (*SendEmailJobPayload, error) {
	var payload SendEmailJobPayload
	err := fromMap(data, &payload)
	return &payload, err
}

// SendPushJobPayload contains the payload for mobile push jobs
type SendPushJobPayload struct {
	AccountIDs []uint            `json:"account_ids"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
}

func (p SendPushJobPayload) ToMap() map[string]interface{} {
	return toMap(p)
}

func SendPushJobPayloadFromMap(data map[string]interface{}) (*SendPushJobPayload, error) {
	var payload SendPushJobPayload
	err := fromMap(data, &payload)
	return &payload, err
}

// CRMSyncJobPayload asks for an account to be pushed to the CRM
type CRMSyncJobPayload struct {
	AccountID uint   `json:"account_id"`
	Reason    string `json:"reason,omitempty"`
}

func (p CRMSyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"account_id": p.AccountID,
		"reason":     p.Reason,
	}
}

func CRMSyncJobPayloadFromMap(data map[string]interface{}) (*CRMSyncJobPayload, error) {
	var payload CRMSyncJobPayload
	err := fromMap(data, &payload)
	return &payload, err
}

// toMap round-trips through JSON so nested slices and maps keep the same
// shape they will have after being read back from Redis.
func toMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func fromMap(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// CanRetry reports whether another attempt is allowed
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

func (j *Job) start(now time.Time) {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.StartedAt = &now
	j.NextAttemptAt = nil
	j.UpdatedAt = now
}

// fail records err and either schedules the next attempt or buries the job.
func (j *Job) fail(err error, now time.Time, backoff time.Duration) {
	j.LastError = err.Error()
	j.UpdatedAt = now
	if !j.CanRetry() {
		j.Status = JobStatusDead
		return
	}
	next := now.Add(backoff * time.Duration(1<<(j.Attempts-1)))
	j.Status = JobStatusRetrying
	j.NextAttemptAt = &next
}
