package memory

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var _ HistoryStore = (*Guard)(nil)

// Guard wraps a [HistoryStore] and makes all operations non-fatal. If the
// underlying store fails, reads return an empty history and writes are
// dropped, with a warning logged instead of an error propagated.
//
// This keeps an interview going while the history backend is temporarily
// unavailable; the model then simply sees less context. [Guard.IsDegraded]
// reports whether the last operation failed.
type Guard struct {
	store    HistoryStore
	degraded atomic.Bool
}

// NewGuard returns a Guard around store.
func NewGuard(store HistoryStore) *Guard {
	return &Guard{store: store}
}

// IsDegraded reports whether the most recent operation on the wrapped store
// failed.
func (g *Guard) IsDegraded() bool { return g.degraded.Load() }

// Append implements [HistoryStore]. It never returns an error.
func (g *Guard) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	if err := g.store.Append(ctx, sessionID, msgs...); err != nil {
		g.markDegraded("append", sessionID, err)
		return nil
	}
	g.markHealthy()
	return nil
}

// Recent implements [HistoryStore]. On failure it returns an empty history.
func (g *Guard) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	msgs, err := g.store.Recent(ctx, sessionID, n)
	if err != nil {
		g.markDegraded("recent", sessionID, err)
		return []Message{}, nil
	}
	g.markHealthy()
	return msgs, nil
}

// Delete implements [HistoryStore]. It never returns an error.
func (g *Guard) Delete(ctx context.Context, sessionID string) error {
	if err := g.store.Delete(ctx, sessionID); err != nil {
		g.markDegraded("delete", sessionID, err)
		return nil
	}
	g.markHealthy()
	return nil
}

func (g *Guard) markDegraded(op, sessionID string, err error) {
	if !g.degraded.Swap(true) {
		slog.Warn("history store degraded", "op", op, "session_id", sessionID, "err", err)
		return
	}
	slog.Debug("history store still degraded", "op", op, "session_id", sessionID, "err", err)
}

func (g *Guard) markHealthy() {
	if g.degraded.Swap(false) {
		slog.Info("history store recovered")
	}
}
