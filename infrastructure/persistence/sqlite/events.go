package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"graphsync/application/ports"
	"graphsync/domain/events"
	appErrors "graphsync/pkg/errors"
)

// EventLog appends events to the events table. The primary key on id makes
// the first write win.
type EventLog struct {
	db *DB
}

// NewEventLog creates an event log on db.
func NewEventLog(db *DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Append(ctx context.Context, ev events.Event) (events.Event, bool, error) {
	if ev.ID == "" {
		return events.Event{}, false, appErrors.NewValidation("event id is required")
	}

	var created bool
	err := retryOnContention(ctx, func() error {
		res, err := l.db.db.ExecContext(ctx,
			`INSERT INTO events (id, graph_id, client_id, type, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			ev.ID, ev.GraphID, ev.ClientID, string(ev.Type), string(ev.Payload),
			ev.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
		n, _ := res.RowsAffected()
		created = n > 0
		return nil
	})
	if err != nil {
		return events.Event{}, false, err
	}
	if created {
		return ev, true, nil
	}

	stored, err := l.get(ctx, ev.ID)
	if err != nil {
		return events.Event{}, false, err
	}
	return stored, false, nil
}

func (l *EventLog) ListSince(ctx context.Context, graphID, since string, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.db.QueryContext(ctx,
		`SELECT id, graph_id, client_id, type, payload, created_at FROM events
		 WHERE graph_id = ? AND id > ? ORDER BY id LIMIT ?`, graphID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", graphID, err)
	}
	defer rows.Close()

	out := []events.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (l *EventLog) get(ctx context.Context, id string) (events.Event, error) {
	row := l.db.db.QueryRowContext(ctx,
		`SELECT id, graph_id, client_id, type, payload, created_at FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (events.Event, error) {
	var (
		ev               events.Event
		typ, payload, at string
	)
	if err := row.Scan(&ev.ID, &ev.GraphID, &ev.ClientID, &typ, &payload, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return events.Event{}, appErrors.NewNotFound("event not found")
		}
		return events.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = events.Type(typ)
	if payload != "" {
		ev.Payload = []byte(payload)
	}
	created, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return events.Event{}, fmt.Errorf("parse created_at of %s: %w", ev.ID, err)
	}
	ev.CreatedAt = created
	return ev, nil
}

var _ ports.EventLog = (*EventLog)(nil)
