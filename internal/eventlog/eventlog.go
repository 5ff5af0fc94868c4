// Package eventlog persists the history of session transitions and bill
// deliveries in the session_events table.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindTransition = "transition"
	KindDelivery   = "delivery"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeFormat is fixed-width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Event is one row of the session history.
type Event struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	Kind      string         `json:"kind"`
	Reason    string         `json:"reason"`
	FromState string         `json:"fromState,omitempty"`
	ToState   string         `json:"toState,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filter selects events for List.
type Filter struct {
	TenantID string // optional
	Kind     string // optional: transition or delivery
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository stores and queries events.
type Repository interface {
	Record(ctx context.Context, ev *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository is the SQLite-backed Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts ev, filling in ID and CreatedAt when empty.
func (r *SQLiteRepository) Record(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = "evt-" + uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	var detail any
	if len(ev.Detail) > 0 {
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("marshalling event detail: %w", err)
		}
		detail = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (id, tenant_id, kind, reason, from_state, to_state, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenantID, ev.Kind, ev.Reason,
		nullable(ev.FromState), nullable(ev.ToState), detail,
		ev.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conds []string
	var args []any
	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM session_events " + where //nolint:gosec // placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting session events: %w", err)
	}

	query := "SELECT id, tenant_id, kind, reason, from_state, to_state, detail, created_at FROM session_events " + //nolint:gosec // placeholders only
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var from, to, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Kind, &ev.Reason, &from, &to, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		ev.FromState = from.String
		ev.ToState = to.String
		if detail.Valid && detail.String != "" {
			_ = json.Unmarshal([]byte(detail.String), &ev.Detail) //nolint:errcheck // written by Record
		}
		ev.CreatedAt, err = time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}

	return &ListResult{Events: events, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
