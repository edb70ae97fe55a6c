package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"council/internal/domain"
	models "council/internal/domain/models/approval"
	approvalRepo "council/internal/domain/repositories/approval"
	"council/internal/repository/postgres"
)

const approvalColumns = `
	id, file_id, title, description, change_type, original_content, proposed_content,
	ai_reasoning, confidence_score, status, COALESCE(session_id, ''), COALESCE(user_id, ''),
	COALESCE(model_id, ''), COALESCE(tool_call_id, ''), payload, created_at, expires_at, decided_at`

// PostgresApprovalRepository implements ApprovalRepository using PostgreSQL
type PostgresApprovalRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewApprovalRepository creates a new PostgresApprovalRepository
func NewApprovalRepository(config *postgres.RepositoryConfig) approvalRepo.ApprovalRepository {
	return &PostgresApprovalRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create stores a new record
func (r *PostgresApprovalRepository) Create(ctx context.Context, a *models.DocumentApproval) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	var payload []byte
	if a.Payload != nil {
		var err error
		if payload, err = json.Marshal(a.Payload); err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, file_id, title, description, change_type, original_content, proposed_content,
			ai_reasoning, confidence_score, status, session_id, user_id, model_id, tool_call_id,
			payload, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''),
			NULLIF($13, ''), NULLIF($14, ''), $15, $16, $17)
	`, r.tables.Approvals)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		a.ID, a.FileID, a.Title, a.Description, string(a.ChangeType), a.OriginalContent, a.ProposedContent,
		a.AIReasoning, a.ConfidenceScore, string(a.Status), a.SessionID, a.UserID, a.ModelID, a.ToolCallID,
		payload, a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return "", &domain.ConflictError{
				Message:      fmt.Sprintf("approval already exists: %s", a.ID),
				ResourceType: "approval",
				ResourceID:   a.ID,
			}
		}
		if postgres.IsPgCheckViolation(err) {
			return "", &domain.ValidationError{Message: fmt.Sprintf("invalid approval: %v", err)}
		}
		return "", fmt.Errorf("create approval: %w", err)
	}

	return a.ID, nil
}

// Get retrieves a record by id
func (r *PostgresApprovalRepository) Get(ctx context.Context, id string) (*models.DocumentApproval, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("approval not found: %s", id)}
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, approvalColumns, r.tables.Approvals)

	executor := postgres.GetExecutor(ctx, r.pool)
	a, err := scanApproval(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("approval not found: %s", id)}
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

// UpdateStatus is a compare-and-swap on status. Inside a transaction the row
// lock makes a concurrent swap wait for this one to commit or roll back.
// Approving or rejecting an expired row loses the swap.
func (r *PostgresApprovalRepository) UpdateStatus(ctx context.Context, id string, newStatus, expected models.Status, decidedAt time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, decided_at = $2
		WHERE id = $3 AND status = $4 AND ($1 = 'expired' OR expires_at > $2)
	`, r.tables.Approvals)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, string(newStatus), decidedAt, id, string(expected))
	if err != nil {
		return false, fmt.Errorf("update approval status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish a lost swap from a missing record
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ListPending lists pending records, newest first
func (r *PostgresApprovalRepository) ListPending(ctx context.Context, filter models.PendingFilter) ([]models.DocumentApproval, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = 'pending'
		  AND ($1::text IS NULL OR file_id = $1)
		  AND ($2::text IS NULL OR user_id = $2)
		ORDER BY created_at DESC
	`, approvalColumns, r.tables.Approvals)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, filter.FileID, filter.UserID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	out := make([]models.DocumentApproval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return out, nil
}

// ExpireDue expires every pending record with expires_at <= now
func (r *PostgresApprovalRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'expired', decided_at = $1
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING id
	`, r.tables.Approvals)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expire approvals: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("expire approvals: %w", err)
	}
	return ids, nil
}

func scanApproval(row pgx.Row) (*models.DocumentApproval, error) {
	var (
		a          models.DocumentApproval
		changeType string
		status     string
		payload    []byte
	)
	err := row.Scan(
		&a.ID, &a.FileID, &a.Title, &a.Description, &changeType, &a.OriginalContent, &a.ProposedContent,
		&a.AIReasoning, &a.ConfidenceScore, &status, &a.SessionID, &a.UserID,
		&a.ModelID, &a.ToolCallID, &payload, &a.CreatedAt, &a.ExpiresAt, &a.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ChangeType = models.ChangeType(changeType)
	a.Status = models.Status(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &a, nil
}
