// README: Courier fixes stored in Firebase RTDB under /driver_locations/{order_id}.
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"ordertrack/internal/types"
)

const driverLocationsNode = "driver_locations"

type Store struct {
	db *db.Client
}

func NewStore(client *db.Client) *Store {
	return &Store{db: client}
}

// Latest returns the most recent fix for the order, or nil when none was published.
func (s *Store) Latest(ctx context.Context, orderID types.ID) (*Fix, error) {
	var fix *Fix
	if err := s.db.NewRef(driverLocationsNode).Child(string(orderID)).Get(ctx, &fix); err != nil {
		return nil, fmt.Errorf("reading driver location for order %s: %w", orderID, err)
	}
	return fix, nil
}

// Publish overwrites the order's fix.
func (s *Store) Publish(ctx context.Context, orderID types.ID, fix Fix) error {
	if err := s.db.NewRef(driverLocationsNode).Child(string(orderID)).Set(ctx, fix); err != nil {
		return fmt.Errorf("writing driver location for order %s: %w", orderID, err)
	}
	return nil
}
