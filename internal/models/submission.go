package models

import "time"

// ClientInfo identifies the submitter's connection.
type ClientInfo struct {
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// Quote is a validated quote request after enrichment.
type Quote struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	ProjectType string `json:"projectType"`
	Budget      string `json:"budget,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	Message     string `json:"message"`
}

// Priority is the subject tag chosen for a quote email.
type Priority string

const (
	PriorityAttachments Priority = "attachments"
	PriorityBudget      Priority = "budget"
	PriorityNormal      Priority = "normal"
)

// SubmissionRecord is the persisted trace of a delivered quote request.
type SubmissionRecord struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Email           string    `db:"email" json:"email"`
	Phone           string    `db:"phone" json:"phone"`
	City            string    `db:"city" json:"city"`
	ProjectType     string    `db:"project_type" json:"projectType"`
	Budget          string    `db:"budget" json:"budget"`
	AttachmentCount int       `db:"attachment_count" json:"attachmentCount"`
	AttachmentBytes int64     `db:"attachment_bytes" json:"attachmentBytes"`
	WarningCount    int       `db:"warning_count" json:"warningCount"`
	ClientIP        string    `db:"client_ip" json:"clientIp"`
	UserAgent       string    `db:"user_agent" json:"userAgent"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// SubmissionResult is returned to the caller of a successful submission.
type SubmissionResult struct {
	ID          string       `json:"id"`
	City        string       `json:"city"`
	Priority    Priority     `json:"priority"`
	Attachments []StoredFile `json:"attachments"`
	Warnings    []string     `json:"warnings,omitempty"`
	SentAt      time.Time    `json:"sentAt"`
}

// MetricsSnapshot is a JSON-friendly summary of process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	SubmissionsSent          uint64    `json:"submissionsSent"`
	SubmissionsRateLimited   uint64    `json:"submissionsRateLimited"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
