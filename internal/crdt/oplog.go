package crdt

import "github.com/theonlypal/collabfs/internal/model"

// opLogContainer is the audit trail: a grow-only set of Operation entries
// keyed by the OpID of the op-log-append mutation that produced them, not
// by the entry's own Token field. Tokens are only unique within a single
// session-instance's writer (they reset across restarts and are assigned
// independently by whichever replica issued the structural op), so two
// entries can legitimately carry the same Token while being distinct
// log lines; keying by OpID keeps both without either clobbering the
// other, while still deduplicating a literal re-delivery of the same op.
type opLogContainer struct {
	entries map[OpID]model.Operation
	order   []OpID
}

func newOpLogContainer() *opLogContainer {
	return &opLogContainer{entries: make(map[OpID]model.Operation)}
}

func (l *opLogContainer) append(id OpID, entry model.Operation) {
	if _, ok := l.entries[id]; ok {
		return // duplicate delivery of the same op is a no-op
	}
	l.entries[id] = entry
	l.order = append(l.order, id)
}

// list returns all entries in the order they were integrated by this
// replica, stable regardless of Token collisions across replicas.
func (l *opLogContainer) list() []model.Operation {
	out := make([]model.Operation, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id])
	}
	return out
}

func (l *opLogContainer) len() int { return len(l.entries) }
