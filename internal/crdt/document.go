// Package crdt implements the conflict-free document behind one session:
// four named containers (fileTree, fileContents, opLog, activity) merged
// under a single transactional update/apply-update contract. It combines
// a YATA/RGA text CRDT with an observed-remove map for existence.
package crdt

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/theonlypal/collabfs/internal/model"
)

// Update-notification origins. The one rule attached to them is the
// client's re-broadcast discipline: updates tagged OriginHub or
// OriginRestore must never be sent back to the hub.
const (
	OriginLocal   = "local"
	OriginHub     = "hub"
	OriginRestore = "restore"
)

// Document is the black-box CRDT primitive behind one session: it exposes
// encodeStateVector, encodeStateAsUpdate, applyUpdate, and a change
// notification. Callers never reach into its containers directly; they go
// through Transaction for writes and the read accessors below.
type Document struct {
	mu sync.Mutex

	nodeID string
	clock  uint64

	fileIdx  *fileIndex
	opLog    *opLogContainer
	activity *activityMap

	history []op
	seen    map[OpID]bool
	vector  map[string]uint64

	listeners []func(update []byte, origin string)

	txPending []op
}

// New creates an empty document replica identified by nodeID (typically a
// uuid — see internal/session and internal/client). Every mutation this
// replica originates is tagged with nodeID so peers can merge it.
func New(nodeID string) *Document {
	return &Document{
		nodeID:   nodeID,
		fileIdx:  newFileIndex(),
		opLog:    newOpLogContainer(),
		activity: newActivityMap(),
		seen:     make(map[OpID]bool),
		vector:   make(map[string]uint64),
	}
}

// Subscribe registers fn to be called after every local transaction commit
// and every ApplyUpdate, carrying the update bytes and their origin —
// the mechanism client/hub use to decide what to re-broadcast.
func (d *Document) Subscribe(fn func(update []byte, origin string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Document) notify(update []byte, origin string) {
	for _, fn := range d.listeners {
		fn(update, origin)
	}
}

// nextID mints a fresh, locally-unique OpID. Callers must hold d.mu.
func (d *Document) nextID() OpID {
	d.clock++
	return OpID{Seq: d.clock, Node: d.nodeID}
}

func (d *Document) bumpVector(id OpID) {
	if id.Seq > d.vector[id.Node] {
		d.vector[id.Node] = id.Seq
	}
}

// emit integrates o locally, marks it seen, and stages it for the current
// transaction's encoded update. Callers must hold d.mu.
func (d *Document) emit(o op) {
	d.integrate(o)
	d.seen[o.ID] = true
	d.bumpVector(o.ID)
	d.txPending = append(d.txPending, o)
}

// integrate applies o's effect to the relevant container. Shared by local
// emission and remote ApplyUpdate so both paths converge identically.
func (d *Document) integrate(o op) {
	switch o.Kind {
	case opInsertChar:
		if e, ok := d.fileIdx.entries[o.Path]; ok {
			e.text.applyInsert(rgaNode{ID: o.ID, After: o.InsertAfter, Char: o.Char})
		}
	case opDeleteChar:
		if e, ok := d.fileIdx.entries[o.Path]; ok {
			e.text.applyDelete(o.TargetID)
		}
	case opFileAdd:
		d.fileIdx.add(o.Path, o.Tag)
	case opFileRemove:
		d.fileIdx.removeTag(o.Path, o.Tag)
	case opMetaSet:
		d.fileIdx.setMeta(o.Path, o.ID, o.Meta)
	case opLogAppend:
		d.opLog.append(o.ID, o.LogEntry)
	case opActivitySet:
		d.activity.set(o.User, o.ID, o.Activity)
	case opActivityRemove:
		d.activity.remove(o.User)
	}
}

// Transaction runs fn against a Tx bound to this document, then — if fn
// produced any mutations — encodes them as one update and fires the change
// notification with the given origin. All mutations inside fn are atomic
// from an observer's point of view.
func (d *Document) Transaction(origin string, fn func(tx *Tx)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.txPending = d.txPending[:0]
	fn(&Tx{doc: d})
	if len(d.txPending) == 0 {
		return
	}
	buf := encodeOps(d.txPending)
	d.history = append(d.history, d.txPending...)
	d.notify(buf, origin)
}

// EncodeStateVector returns this replica's compact "what I've seen"
// summary.
func (d *Document) EncodeStateVector() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encodeVector(d.vector)
}

// EncodeStateAsUpdate returns the ops the holder of remoteVector is
// missing, or the full history if remoteVector is nil.
func (d *Document) EncodeStateAsUpdate(remoteVector []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var remote map[string]uint64
	if remoteVector != nil {
		remote = decodeVector(remoteVector)
	}
	var missing []op
	for _, o := range d.history {
		if o.ID.Seq > remote[o.ID.Node] {
			missing = append(missing, o)
		}
	}
	return encodeOps(missing)
}

// ApplyUpdate integrates update (as produced by EncodeStateAsUpdate or a
// peer's transaction) and fires the change notification with origin.
// Applying the same bytes twice is a no-op: every op is deduplicated by
// OpID before being integrated.
func (d *Document) ApplyUpdate(update []byte, origin string) error {
	ops, err := decodeOps(update)
	if err != nil {
		return fmt.Errorf("crdt: decode update: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var integrated []op
	for _, o := range ops {
		if d.seen[o.ID] {
			continue
		}
		d.integrate(o)
		d.seen[o.ID] = true
		d.bumpVector(o.ID)
		integrated = append(integrated, o)
	}
	// Lamport rule: advance the clock past every op seen so far, so a local
	// insert made after this update always outranks the siblings it has
	// already observed. This also covers ops previously minted under this
	// replica's own node id (a snapshot restored after a restart), which
	// would otherwise have their OpIDs reused and deduplicated away.
	for _, seq := range d.vector {
		if seq > d.clock {
			d.clock = seq
		}
	}
	if len(integrated) == 0 {
		return nil
	}
	d.history = append(d.history, integrated...)
	d.notify(update, origin)
	return nil
}

// ---- read accessors (each takes the lock independently) ----

// Text returns the current merged content of path.
func (d *Document) Text(path string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.fileIdx.get(path)
	if !ok {
		return "", false
	}
	return e.text.text(), true
}

// Meta returns the current metadata for path.
func (d *Document) Meta(path string) (model.FileMeta, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.fileIdx.get(path)
	if !ok {
		return model.FileMeta{}, false
	}
	return e.meta, true
}

// Exists reports whether path is currently alive in the document.
func (d *Document) Exists(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.fileIdx.get(path)
	return ok
}

// ListFiles returns every alive (path, meta) pair whose path starts with
// prefix, sorted by path (empty prefix matches everything).
func (d *Document) ListFiles(prefix string) []model.FileEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := d.fileIdx.paths()
	sort.Strings(paths)
	var out []model.FileEntry
	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		e := d.fileIdx.entries[p]
		out = append(out, model.FileEntry{Path: p, Meta: e.meta})
	}
	return out
}

// OpLog returns every logged operation, oldest first.
func (d *Document) OpLog() []model.Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opLog.list()
}

// Activity returns user's current presence entry, if any.
func (d *Document) Activity(user string) (model.Activity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activity.get(user)
}

// AllActivity returns every current presence entry, keyed by user-id.
func (d *Document) AllActivity() map[string]model.Activity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activity.all()
}

// Counts returns (fileCount, opLogLength) for the session "stats" payload.
func (d *Document) Counts() (files int, ops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fileIdx.paths()), d.opLog.len()
}

// ---- gob wire helpers for update/state-vector bytes ----

func encodeOps(ops []op) []byte {
	var buf bytes.Buffer
	// A nil slice still needs to round-trip as "zero ops", not an error.
	cp := make([]op, len(ops))
	copy(cp, ops)
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		panic(fmt.Sprintf("crdt: encode ops: %v", err)) // unreachable: op has no unencodable fields
	}
	return buf.Bytes()
}

func decodeOps(data []byte) ([]op, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ops []op
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func encodeVector(v map[string]uint64) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(fmt.Sprintf("crdt: encode vector: %v", err))
	}
	return buf.Bytes()
}

func decodeVector(data []byte) map[string]uint64 {
	v := make(map[string]uint64)
	if len(data) == 0 {
		return v
	}
	_ = gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v
}
