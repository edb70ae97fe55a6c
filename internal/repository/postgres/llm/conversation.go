package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	llmModels "council/internal/domain/models/llm"
	llmRepo "council/internal/domain/repositories/llm"
	"council/internal/repository/postgres"
)

// PostgresConversationStore implements ConversationStore using PostgreSQL
type PostgresConversationStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewConversationStore creates a new PostgresConversationStore
func NewConversationStore(config *postgres.RepositoryConfig) llmRepo.ConversationStore {
	return &PostgresConversationStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// LoadConversationHistory returns the session's turns oldest first
func (s *PostgresConversationStore) LoadConversationHistory(ctx context.Context, sessionID string) ([]llmModels.Turn, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, role, content, COALESCE(model_id, ''), tool_calls, tool_result, created_at
		FROM %s
		WHERE session_id = $1
		ORDER BY seq
	`, s.tables.Turns)

	executor := postgres.GetExecutor(ctx, s.pool)
	rows, err := executor.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := make([]llmModels.Turn, 0)
	for rows.Next() {
		var (
			turn       llmModels.Turn
			role       string
			toolCalls  []byte
			toolResult []byte
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Content, &turn.ModelID, &toolCalls, &toolResult, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = llmModels.Role(role)

		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &turn.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls for turn %s: %w", turn.ID, err)
			}
		}
		if len(toolResult) > 0 {
			var result llmModels.ToolResult
			if err := json.Unmarshal(toolResult, &result); err != nil {
				return nil, fmt.Errorf("decode tool result for turn %s: %w", turn.ID, err)
			}
			turn.ToolResult = &result
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	return turns, nil
}

// AppendTurns stores turns after the existing ones, in order
func (s *PostgresConversationStore) AppendTurns(ctx context.Context, sessionID string, turns []llmModels.Turn) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, role, content, model_id, tool_calls, tool_result, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, COALESCE($7::timestamptz, now()))
	`, s.tables.Turns)

	executor := postgres.GetExecutor(ctx, s.pool)
	for i := range turns {
		turn := &turns[i]

		var toolCalls, toolResult []byte
		var err error
		if len(turn.ToolCalls) > 0 {
			if toolCalls, err = json.Marshal(turn.ToolCalls); err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
		}
		if turn.ToolResult != nil {
			if toolResult, err = json.Marshal(turn.ToolResult); err != nil {
				return fmt.Errorf("encode tool result: %w", err)
			}
		}

		var createdAt interface{}
		if !turn.CreatedAt.IsZero() {
			createdAt = turn.CreatedAt
		}

		if _, err := executor.Exec(ctx, query, sessionID, string(turn.Role), turn.Content, turn.ModelID, toolCalls, toolResult, createdAt); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	s.logger.Debug("turns appended", "session_id", sessionID, "count", len(turns))
	return nil
}
