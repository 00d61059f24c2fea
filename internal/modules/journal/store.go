// README: Journal store appends tracking events to Postgres.
package journal

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ordertrack/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS tracking_events (
            id          BIGSERIAL PRIMARY KEY,
            session_id  TEXT NOT NULL,
            order_id    TEXT NOT NULL,
            kind        TEXT NOT NULL,
            from_state  TEXT NOT NULL,
            to_state    TEXT NOT NULL,
            created_at  TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS tracking_events_session_idx ON tracking_events (session_id, id);`)
	return err
}

func (s *Store) Append(ctx context.Context, e *Event) error {
	row := s.db.QueryRow(ctx, `
        INSERT INTO tracking_events (
            session_id, order_id, kind, from_state, to_state, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`,
		e.SessionID,
		string(e.OrderID),
		string(e.Kind),
		e.From,
		e.To,
		e.CreatedAt,
	)
	return row.Scan(&e.ID)
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, session_id, order_id, kind, from_state, to_state, created_at
        FROM tracking_events
        WHERE session_id = $1
        ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			orderID string
			kind    string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &orderID, &kind, &e.From, &e.To, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OrderID = types.ID(orderID)
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
