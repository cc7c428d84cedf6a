package realtime

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MembershipStore answers membership lookups against the durable store.
type MembershipStore interface {
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// MembershipOracle authorizes room access. It never caches and treats store
// failures as "not a member".
type MembershipOracle struct {
	store MembershipStore
	log   zerolog.Logger
}

func NewMembershipOracle(store MembershipStore, logger zerolog.Logger) *MembershipOracle {
	return &MembershipOracle{store: store, log: logger}
}

func (o *MembershipOracle) IsMember(ctx context.Context, roomID, userID uuid.UUID) bool {
	ok, err := o.store.IsMember(ctx, roomID, userID)
	if err != nil {
		o.log.Error().Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", userID.String()).
			Msg("membership check failed, denying access")
		return false
	}
	return ok
}
