package crdt

import "fmt"

// OpID is a globally unique, totally ordered identifier for one mutation
// applied to a document: a per-replica Lamport sequence number paired with
// the replica's node id. Every container in Document tags its mutations
// with an OpID so concurrent edits merge deterministically.
type OpID struct {
	Seq  uint64
	Node string
}

// Zero reports whether id is the unset sentinel (used as "no predecessor").
func (id OpID) Zero() bool { return id.Seq == 0 && id.Node == "" }

// String renders the id as "<seq>@<node>", handy in tests and logs.
func (id OpID) String() string {
	if id.Zero() {
		return "<nil>"
	}
	return fmt.Sprintf("%d@%s", id.Seq, id.Node)
}

// Less gives OpID a total order: higher Seq wins, ties broken by Node so
// replicas that apply the same two concurrent ops always agree on which
// one is "later".
func (id OpID) Less(other OpID) bool {
	if id.Seq != other.Seq {
		return id.Seq < other.Seq
	}
	return id.Node < other.Node
}
