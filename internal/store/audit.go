package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one persisted security-relevant action: a login, a logout,
// an admin promotion/demotion, a server credential change, and so on.
type AuditEvent struct {
	ID         string
	OccurredAt time.Time
	ActorID    string
	ActorName  string
	Action     string
	Target     string
	Outcome    string
	Detail     string
	IPAddress  string
}

// InsertAuditEvent persists one audit record. A zero ID/OccurredAt is
// filled in.
func (s *Store) InsertAuditEvent(ctx context.Context, e *AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO audit_log (id, occurred_at, actor_id, actor_name, action, target, outcome, detail, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OccurredAt, e.ActorID, e.ActorName, e.Action, e.Target, e.Outcome, e.Detail, e.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the most recent audit records, newest first,
// capped at limit.
func (s *Store) ListAuditEvents(ctx context.Context, limit int) ([]*AuditEvent, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, occurred_at, actor_id, actor_name, action, target, outcome, detail, ip_address
		FROM audit_log ORDER BY occurred_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.ActorName, &e.Action, &e.Target, &e.Outcome, &e.Detail, &e.IPAddress); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
