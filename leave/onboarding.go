/*
onboarding.go - User registration

PURPOSE:
  Registers a user and seeds every balance-carrying account with an
  INITIAL history entry in the same transaction, so a fresh user's
  history replays from a known starting point even when the seed is
  zero.
*/
package leave

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateUser registers u and opens its accounts. Seeds not present in
// the map default to zero; every account still gets its INITIAL entry.
func (s *Service) CreateUser(ctx context.Context, u User, seeds map[LeaveType]decimal.Decimal, actorID string) (*User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertUser(&u); err != nil {
			return err
		}
		for _, lt := range BalanceTypes {
			seed := seeds[lt]
			if err := s.ledger.Initialize(tx, u.ID, lt, seed, actorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}
