package chat

import (
	"context"

	"go.uber.org/zap"
)

// OfflineDeliveryAgent drains a user's offline-pending private messages
// when that user comes online. The drain is one-shot: messages created
// after its snapshot reach the user through the router's live path,
// since the user is present in the registry by then.
type OfflineDeliveryAgent struct {
	logger   *zap.SugaredLogger
	store    MessageStore
	presence *PresenceRegistry
}

func NewOfflineDeliveryAgent(logger *zap.SugaredLogger, store MessageStore, presence *PresenceRegistry) *OfflineDeliveryAgent {
	return &OfflineDeliveryAgent{
		logger:   logger,
		store:    store,
		presence: presence,
	}
}

// DrainPending pushes every offline-pending message addressed to the
// user, oldest first, marking each delivered (which also clears its
// offline flag) after a successful push. If the connection drops
// mid-drain the remaining messages stay pending for the next reconnect.
// Returns the number of messages delivered.
func (a *OfflineDeliveryAgent) DrainPending(ctx context.Context, userID int64) (int, error) {
	conn, ok := a.presence.Lookup(userID)
	if !ok {
		return 0, ErrNotConnected
	}

	pending, err := a.store.OfflineMessages(ctx, userID)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range pending {
		if err := conn.Push(PayloadFromMessage(&pending[i], false)); err != nil {
			a.logger.Debugf("drain for user %d stopped after %d messages: %v", userID, delivered, err)
			return delivered, nil
		}
		if err := a.store.MarkMessageDelivered(ctx, pending[i].ID); err != nil {
			return delivered, err
		}
		delivered++
	}

	if delivered > 0 {
		a.logger.Infof("delivered %d offline-pending messages to user %d", delivered, userID)
	}

	return delivered, nil
}
