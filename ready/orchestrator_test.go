package ready

import (
	"testing"
	"time"
)

type fakeQueue struct {
	empty   bool
	flushed bool
}

func (f *fakeQueue) Empty() bool { return f.empty }
func (f *fakeQueue) Flush()      { f.flushed = true; f.empty = true }

func TestReadyEmitsOnceWhenCountersDrain(t *testing.T) {
	calls := 0
	o := New(50*time.Millisecond, func() { calls++ })

	o.Begin(2, true, nil, nil) // bot session: no per-guild sync expected

	o.GuildCreate(true)
	if calls != 0 {
		t.Fatalf("should not be ready with one unavailable guild left")
	}
	o.GuildCreate(true)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Further events must not re-trigger the signal.
	o.GuildCreate(true)
	if calls != 1 {
		t.Fatalf("ready fired more than once: calls = %d", calls)
	}
}

func TestReadyWaitsOnMemberChunks(t *testing.T) {
	calls := 0
	o := New(50*time.Millisecond, func() { calls++ })

	o.Begin(1, true, nil, nil) // one unavailable guild holds ready off while chunks are requested
	o.RequestMemberChunk("guild-1", 2)
	o.GuildCreate(true)

	if calls != 0 {
		t.Fatalf("should not be ready until chunks drain")
	}

	o.MembersChunk("guild-1")
	if calls != 0 {
		t.Fatalf("should not be ready with one chunk still pending")
	}
	o.MembersChunk("guild-1")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestReadyFlushesNonEmptyQueuesBeforeSignal(t *testing.T) {
	q := &fakeQueue{empty: false}
	calls := 0
	o := New(50*time.Millisecond, func() { calls++ }, q)

	o.Begin(0, true, nil, nil)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !q.flushed {
		t.Fatalf("expected non-empty queue to be flushed before ready")
	}
}

func TestGuildCreateTimeoutForcesReadyCheck(t *testing.T) {
	calls := make(chan struct{}, 1)
	o := New(20*time.Millisecond, func() { calls <- struct{}{} })

	o.Begin(3, true, nil, nil) // never resolved by GuildCreate

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("guildCreateTimeout never forced a ready check")
	}
}

func TestNonBotSessionIssuesSyncPerUnavailableGuild(t *testing.T) {
	var synced []string
	o := New(50*time.Millisecond, func() {}, )

	o.Begin(2, false, func(id string) { synced = append(synced, id) }, []string{"a", "b"})

	if len(synced) != 2 {
		t.Fatalf("synced = %v, want 2 guild syncs issued", synced)
	}
}
