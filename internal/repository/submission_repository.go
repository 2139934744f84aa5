package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rc-quote-api/internal/models"
)

const submissionSchema = `CREATE TABLE IF NOT EXISTS quote_submissions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL,
	city TEXT NOT NULL,
	project_type TEXT NOT NULL,
	budget TEXT NOT NULL DEFAULT '',
	attachment_count INTEGER NOT NULL DEFAULT 0,
	attachment_bytes BIGINT NOT NULL DEFAULT 0,
	warning_count INTEGER NOT NULL DEFAULT 0,
	client_ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`

// SubmissionRepository persists the trace of delivered quote requests.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// EnsureSchema creates the submissions table when missing.
func (r *SubmissionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, submissionSchema); err != nil {
		return fmt.Errorf("ensure submission schema: %w", err)
	}
	return nil
}

// Insert stores one submission row.
func (r *SubmissionRepository) Insert(ctx context.Context, record *models.SubmissionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO quote_submissions
	(id, name, email, phone, city, project_type, budget, attachment_count, attachment_bytes, warning_count, client_ip, user_agent, created_at)
	VALUES (:id, :name, :email, :phone, :city, :project_type, :budget, :attachment_count, :attachment_bytes, :warning_count, :client_ip, :user_agent, :created_at)
	ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListRecent returns the newest submissions first.
func (r *SubmissionRepository) ListRecent(ctx context.Context, limit int) ([]models.SubmissionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, name, email, phone, city, project_type, budget, attachment_count, attachment_bytes,
       warning_count, client_ip, user_agent, created_at
	FROM quote_submissions ORDER BY created_at DESC LIMIT $1`
	var records []models.SubmissionRecord
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return records, nil
}
