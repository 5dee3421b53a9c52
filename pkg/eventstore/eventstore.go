// Package eventstore is an append-only, per-aggregate event journal kept in a
// relational table. Appends run on the caller's executor, so events commit or
// roll back together with the state change they describe.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
	ErrNoEvents            = errors.New("no events to append")
)

// DefaultTable is the journal table created by the service migrations.
const DefaultTable = "loan_events"

// Event is one journal entry.
type Event struct {
	ID            int64               `json:"id"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	AggregateType string              `json:"aggregate_type"`
	EventType     string              `json:"event_type"`
	EventData     jsoniter.RawMessage `json:"event_data"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewEvent encodes payload as the event data.
func NewEvent(eventType string, payload any, metadata map[string]any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: data, Metadata: metadata}, nil
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.EventData, v)
}

// EventStore reads and writes one journal table.
type EventStore struct {
	table  string
	rebind func(string) string
	tracer trace.Tracer
}

// NewEventStore returns a journal over the given table for a sqlx driver
// name ("postgres" or "sqlite3"). An empty table selects DefaultTable.
func NewEventStore(driverName, table string) *EventStore {
	if table == "" {
		table = DefaultTable
	}
	bindType := sqlx.BindType(driverName)
	return &EventStore{
		table:  table,
		rebind: func(q string) string { return sqlx.Rebind(bindType, q) },
		tracer: otel.Tracer("libradesk/eventstore"),
	}
}

// AppendEvents appends events for one aggregate with an optimistic version
// check: the stream must currently end at expectedVersion. The first event
// gets expectedVersion+1. A concurrent writer that got there first yields
// ErrConcurrencyConflict.
func (es *EventStore) AppendEvents(ctx context.Context, ext sqlx.ExtContext, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}
	if len(events) == 0 {
		return ErrNoEvents
	}

	currentVersion, err := es.currentVersion(ctx, ext, aggregateID)
	if err != nil {
		return err
	}
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return fmt.Errorf("%w: aggregate %s at version %d, expected %d",
			ErrConcurrencyConflict, aggregateID, currentVersion, expectedVersion)
	}

	insert := es.rebind(`INSERT INTO ` + es.table + `
		(aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for i, event := range events {
		version := expectedVersion + i + 1

		var metadata any
		if len(event.Metadata) > 0 {
			raw, err := json.MarshalToString(event.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata of event %d: %w", i, err)
			}
			metadata = raw
		}

		_, err := ext.ExecContext(ctx, insert,
			aggregateID, aggregateType, event.EventType, string(event.EventData), metadata, version, time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err) {
				span.SetAttributes(attribute.Bool("conflict.detected", true))
				return fmt.Errorf("%w: version %d of aggregate %s already written", ErrConcurrencyConflict, version, aggregateID)
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// LoadEvents returns the events of an aggregate from fromVersion on, up to
// toVersion when it is positive, in version order.
func (es *EventStore) LoadEvents(ctx context.Context, q sqlx.QueryerContext, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM ` + es.table + `
		WHERE aggregate_id = ? AND version >= ?`
	args := []any{aggregateID, fromVersion}
	if toVersion > 0 {
		query += " AND version <= ?"
		args = append(args, toVersion)
	}
	query += " ORDER BY version ASC"

	rows, err := q.QueryxContext(ctx, es.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			event    Event
			data     []byte
			metadata []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&data,
			&metadata,
			&event.Version,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = data
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// currentVersion returns the latest version of an aggregate, 0 if it has no events.
func (es *EventStore) currentVersion(ctx context.Context, q sqlx.QueryerContext, aggregateID uuid.UUID) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, q, &version,
		es.rebind(`SELECT COALESCE(MAX(version), 0) FROM `+es.table+` WHERE aggregate_id = ?`), aggregateID)
	if err != nil {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
