package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HistoryStore persists chat turns per phone number. Only user and assistant
// text turns are stored; tool traffic is transient and rebuilt each message.
type HistoryStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewHistoryStore initializes the store backed by pgxpool.
func NewHistoryStore(pool *pgxpool.Pool, tracer trace.Tracer) *HistoryStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	if tracer == nil {
		tracer = otel.Tracer("dentalbot.internal.conversation.history")
	}
	return &HistoryStore{pool: pool, tracer: tracer}
}

// Append stores one turn.
func (s *HistoryStore) Append(ctx context.Context, phone string, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	var toolCalls []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCalls, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: marshal tool calls: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_history (phone, role, content, tool_calls)
		VALUES ($1, $2, $3, $4)`,
		phone, msg.Role, msg.Content, toolCalls)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append history: %w", err)
	}
	return nil
}

// Recent returns the last limit turns for a phone, oldest first.
func (s *HistoryStore) Recent(ctx context.Context, phone string, limit int) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT role, content
		FROM (
			SELECT id, role, content FROM chat_history
			WHERE phone = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id`,
		phone, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: scan history: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: read history: %w", err)
	}
	return out, nil
}
