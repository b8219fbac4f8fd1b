package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends to the audit_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, call_id, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress, e.CallID, e.Message, metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID int64, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id::text, type, actor_user_id, actor_role, ip_address, call_id, message, COALESCE(metadata::text, ''), created_at
		FROM audit_events
		WHERE call_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, callID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress, &e.CallID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ Repository = (*PostgresRepo)(nil)
	_ Repository = (*MemoryRepo)(nil)
)
