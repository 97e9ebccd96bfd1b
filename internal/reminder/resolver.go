package reminder

import (
	"context"

	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
)

// DefaultResolveLimit bounds how many recent senders are scanned when
// snapshotting recipients.
const DefaultResolveLimit = 50

// HistorySource is the slice of the transport adapter the resolver
// needs.
type HistorySource interface {
	History(ctx context.Context, to kit.ChatTarget, limit int) ([]kit.Participant, error)
}

// Resolver snapshots the non-bot participants of a thread at reminder
// creation. Resolution is best effort: any failure or a non-thread
// target yields an empty snapshot, never an error to the caller.
type Resolver struct {
	src   HistorySource
	log   logx.Logger
	limit int
}

func NewResolver(src HistorySource, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{
		src:   src,
		log:   log.With(logx.String("comp", "reminder.resolver")),
		limit: DefaultResolveLimit,
	}
}

func (r *Resolver) Resolve(ctx context.Context, to kit.ChatTarget) []int64 {
	if r == nil || r.src == nil {
		return nil
	}
	if !to.IsThread() {
		return nil
	}
	parts, err := r.src.History(ctx, to, r.limit)
	if err != nil {
		r.log.Debug("history lookup failed",
			logx.Int64("chat", to.ChatID), logx.Int("thread", to.ThreadID),
			logx.Err(&ResolutionError{Err: err}))
		return nil
	}
	seen := make(map[int64]struct{}, len(parts))
	var ids []int64
	for _, p := range parts {
		if p.IsBot {
			continue
		}
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}
		ids = append(ids, p.UserID)
	}
	return ids
}
