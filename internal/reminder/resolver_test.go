package reminder

import (
	"context"
	"errors"
	"testing"

	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
)

type fakeHistory struct {
	parts []kit.Participant
	err   error
}

func (f *fakeHistory) History(_ context.Context, _ kit.ChatTarget, _ int) ([]kit.Participant, error) {
	return f.parts, f.err
}

func TestResolverThreadOnly(t *testing.T) {
	t.Parallel()

	src := &fakeHistory{parts: []kit.Participant{{UserID: 1}}}
	r := NewResolver(src, logx.Nop())

	if got := r.Resolve(context.Background(), kit.ChatTarget{ChatID: -100}); got != nil {
		t.Fatalf("non-thread target resolved to %v, want empty", got)
	}
	if got := r.Resolve(context.Background(), kit.ChatTarget{ChatID: -100, ThreadID: 5}); len(got) != 1 {
		t.Fatalf("thread target resolved to %v, want one id", got)
	}
}

func TestResolverFiltersAndDedupes(t *testing.T) {
	t.Parallel()

	src := &fakeHistory{parts: []kit.Participant{
		{UserID: 10},
		{UserID: 20, IsBot: true},
		{UserID: 10},
		{UserID: 30},
	}}
	r := NewResolver(src, logx.Nop())

	got := r.Resolve(context.Background(), kit.ChatTarget{ChatID: -1, ThreadID: 2})
	if len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Fatalf("resolved = %v, want [10 30]", got)
	}
}

func TestResolverDegradesOnError(t *testing.T) {
	t.Parallel()

	src := &fakeHistory{err: errors.New("gateway down")}
	r := NewResolver(src, logx.Nop())

	if got := r.Resolve(context.Background(), kit.ChatTarget{ChatID: -1, ThreadID: 2}); got != nil {
		t.Fatalf("failed lookup resolved to %v, want empty", got)
	}
}
