package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"council/internal/domain"
	contentRepo "council/internal/domain/repositories/content"
	"council/internal/repository/postgres"
)

// PostgresContentStore keeps extracted file text in PostgreSQL
type PostgresContentStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewContentStore creates a new PostgresContentStore
func NewContentStore(config *postgres.RepositoryConfig) contentRepo.ContentStore {
	return &PostgresContentStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// ReadFileContent returns the current text of a file
func (s *PostgresContentStore) ReadFileContent(ctx context.Context, fileID string) (string, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE id = $1`, s.tables.Files)

	var text string
	executor := postgres.GetExecutor(ctx, s.pool)
	if err := executor.QueryRow(ctx, query, fileID).Scan(&text); err != nil {
		if postgres.IsPgNoRowsError(err) {
			return "", &domain.NotFoundError{Message: fmt.Sprintf("file not found: %s", fileID)}
		}
		return "", fmt.Errorf("read file content: %w", err)
	}
	return text, nil
}

// WriteFileContent replaces or creates a file's text
func (s *PostgresContentStore) WriteFileContent(ctx context.Context, fileID, text string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, updated_at = now()
	`, s.tables.Files)

	executor := postgres.GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, fileID, text); err != nil {
		return fmt.Errorf("write file content: %w", err)
	}

	s.logger.Debug("file content written", "file_id", fileID, "bytes", len(text))
	return nil
}
