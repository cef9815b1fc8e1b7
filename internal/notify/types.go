// Package notify delivers rendered spending summaries to subscribers over
// SMS. Dispatch is modeled as an explicit asynchronous job with its own
// status record and log sink, decoupled from the HTTP request lifecycle.
// Delivery is best-effort: a failed job is recorded and logged, never
// surfaced to the API caller.
package notify

import (
	"context"
	"time"
)

// JobStatus represents the current status of a dispatch job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be sent.
	JobStatusPending JobStatus = "pending"
	// JobStatusSending indicates the job is being submitted to the SMS provider.
	JobStatusSending JobStatus = "sending"
	// JobStatusSent indicates the provider accepted the message.
	JobStatusSent JobStatus = "sent"
	// JobStatusFailed indicates submission failed.
	JobStatusFailed JobStatus = "failed"
)

// SummaryJob is one outbound summary message.
type SummaryJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// PhoneNumber is the SMS destination.
	PhoneNumber string `json:"phone_number"`

	// Body is the rendered summary text.
	Body string `json:"body"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when submission finished (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains the provider error if submission failed.
	Error string `json:"error,omitempty"`
}

// Publisher enqueues summary jobs for asynchronous delivery.
type Publisher interface {
	// PublishSummary enqueues one outbound summary message.
	PublishSummary(ctx context.Context, job *SummaryJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer drains the queue and submits messages.
type Consumer interface {
	// Start begins consuming jobs. The handler is called for each job.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight jobs to finish.
	Stop(ctx context.Context) error
}

// Handler submits a single summary job. A returned error marks the job
// failed; there is no redelivery.
type Handler func(ctx context.Context, job *SummaryJob) error

// JobStore records dispatch outcomes so failed deliveries are observable.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SummaryJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*SummaryJob, error)

	// ListJobs retrieves jobs, newest first, optionally filtered by status.
	ListJobs(ctx context.Context, status JobStatus) ([]*SummaryJob, error)
}

// Sender submits one SMS through the outbound messaging provider and returns
// the provider's message identifier.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}
