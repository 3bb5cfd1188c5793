package confirm

import (
	"context"
	"log/slog"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/state"
)

// ManualOverride lets an operator grant access for an out-of-band payment.
type ManualOverride struct {
	rec        Reconciler
	states     interface{ Get(int64) (state.FunnelState, bool) }
	isOperator func(int64) bool
}

// NewManualOverride builds the adapter. A nil isOperator rejects everyone.
func NewManualOverride(rec Reconciler, states state.Store, isOperator func(int64) bool) *ManualOverride {
	if isOperator == nil {
		isOperator = func(int64) bool { return false }
	}
	return &ManualOverride{rec: rec, states: states, isOperator: isOperator}
}

// Grant checks the operator and dispatches the grant for userID.
func (m *ManualOverride) Grant(ctx context.Context, operatorID, userID int64) error {
	if !m.isOperator(operatorID) {
		logger.Warn(ctx, logger.CompReconcile, "override.denied",
			slog.String("outcome", "denied"),
			slog.Int64("operator_id", operatorID),
		)
		return &funnel.UnauthorizedActionError{Action: "grant paid access", ActorID: operatorID}
	}
	if userID <= 0 {
		return &funnel.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	var paymentID string
	if st, ok := m.states.Get(userID); ok {
		paymentID = st.PaymentID
	}
	logger.Info(ctx, logger.CompReconcile, "override.requested",
		slog.Int64("operator_id", operatorID),
		slog.Int64("user_id", userID),
	)
	return m.rec.Override(ctx, userID, paymentID)
}
