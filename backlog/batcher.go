// Package backlog implements the bounded batcher used for
// the two independent queues the ready orchestrator drains: guild-sync
// IDs and member-fetch guild IDs. Both share the same shape; only the
// byte budget and flush encoding differ.
package backlog

// FlushFunc sends a batch of ids as a single control frame. The
// batcher guarantees len(ids) never produces a frame over the
// configured byte budget.
type FlushFunc func(ids []string)

// Batcher accumulates opaque string identifiers and flushes them as a
// single control frame once the running encoded length would exceed
// budgetBytes, or immediately if the session is already ready.
type Batcher struct {
	budgetBytes int
	flush       FlushFunc
	isReady     func() bool

	ids []string
	len int // cumulative encoded length of ids, including per-id framing overhead
}

// perIDOverhead accounts for the quoting/comma framing each id adds to
// its containing JSON array, the "original length + id
// length + 3 bytes for separator/quote framing" — here that's folded
// into a flat 3-byte-per-id constant since ids are always the encoded
// length already.
const perIDOverhead = 3

// GuildSyncBudget and MemberFetchBudget are the per-queue byte budgets,
// sized so a flush always fits under the hard 4 KiB single-frame
// payload limit once its envelope overhead is added back.
const (
	GuildSyncBudget   = 4081
	MemberFetchBudget = 4048
)

// New builds a Batcher. budgetBytes should be computed from the
// control frame's fixed envelope overhead such that a flush always
// fits under the hard 4 KiB single-frame payload budget;
// isReady reports the session's current ready state.
func New(budgetBytes int, flush FlushFunc, isReady func() bool) *Batcher {
	return &Batcher{budgetBytes: budgetBytes, flush: flush, isReady: isReady}
}

// Enqueue adds id to the batch, the three-way rule:
//   - if adding id would exceed the byte budget, flush what's queued
//     first, then start a new batch containing only id;
//   - else if the session is ready, send a single-element frame now;
//   - else append and keep accumulating.
func (b *Batcher) Enqueue(id string) {
	added := len(id) + perIDOverhead

	if b.len+added > b.budgetBytes && len(b.ids) > 0 {
		b.flushAll()
	}

	if b.isReady != nil && b.isReady() {
		b.flush([]string{id})
		return
	}

	b.ids = append(b.ids, id)
	b.len += added
}

// Flush sends any queued ids as one frame and clears the batch. It is
// a no-op if the batch is empty.
func (b *Batcher) Flush() {
	if len(b.ids) == 0 {
		return
	}
	b.flushAll()
}

func (b *Batcher) flushAll() {
	ids := b.ids
	b.ids = nil
	b.len = 0
	b.flush(ids)
}

// Empty reports whether the batch has nothing pending.
func (b *Batcher) Empty() bool {
	return len(b.ids) == 0
}

// Len reports the number of ids currently queued (not yet flushed).
func (b *Batcher) Len() int {
	return len(b.ids)
}
