package crdt

import "github.com/theonlypal/collabfs/internal/model"

// Tx is the write surface handed to a Document.Transaction callback. Every
// mutating method stages one or more ops, via Document.emit or, for text
// edits already applied to the RGA, directly; the Document encodes and
// broadcasts them as a single update once the callback returns. Tx holds no
// lock of its own — it runs under the Document's mu, held for the
// transaction's whole duration.
type Tx struct {
	doc *Document
}

// FileExists reports whether path is currently alive.
func (tx *Tx) FileExists(path string) bool {
	_, ok := tx.doc.fileIdx.get(path)
	return ok
}

// EnsureFile creates path if it doesn't already exist, stamping meta via an
// opFileAdd + opMetaSet pair. Returns false if path already existed (no-op).
func (tx *Tx) EnsureFile(path string, meta model.FileMeta) bool {
	if tx.FileExists(path) {
		return false
	}
	tag := tx.doc.nextID()
	tx.doc.emit(op{ID: tag, Kind: opFileAdd, Path: path, Tag: tag})
	metaID := tx.doc.nextID()
	tx.doc.emit(op{ID: metaID, Kind: opMetaSet, Path: path, Meta: meta})
	return true
}

// SetMeta overwrites path's metadata (last-writer-wins across replicas).
func (tx *Tx) SetMeta(path string, meta model.FileMeta) {
	id := tx.doc.nextID()
	tx.doc.emit(op{ID: id, Kind: opMetaSet, Path: path, Meta: meta})
}

// ReadMeta returns path's current metadata, if it exists.
func (tx *Tx) ReadMeta(path string) (model.FileMeta, bool) {
	e, ok := tx.doc.fileIdx.get(path)
	if !ok {
		return model.FileMeta{}, false
	}
	return e.meta, true
}

// ReadText returns path's current merged text content.
func (tx *Tx) ReadText(path string) string {
	e, ok := tx.doc.fileIdx.get(path)
	if !ok {
		return ""
	}
	return e.text.text()
}

// TextLen returns the number of visible characters in path's content.
func (tx *Tx) TextLen(path string) int {
	e, ok := tx.doc.fileIdx.get(path)
	if !ok {
		return 0
	}
	return e.text.visibleLen()
}

// InsertText inserts s at visible character offset pos in path's
// content, one RGA insert per rune.
func (tx *Tx) InsertText(path string, pos int, s string) {
	e, ok := tx.doc.fileIdx.get(path)
	if !ok {
		return
	}
	for _, ch := range s {
		id := tx.doc.nextID()
		node := e.text.insertAt(pos, ch, id)
		pos++
		tx.doc.seen[id] = true
		tx.doc.bumpVector(id)
		tx.doc.txPending = append(tx.doc.txPending, op{
			ID: id, Kind: opInsertChar, Path: path,
			InsertAfter: node.After, Char: ch,
		})
	}
}

// AppendText appends s to path's content.
func (tx *Tx) AppendText(path, s string) {
	e, ok := tx.doc.fileIdx.get(path)
	if !ok {
		return
	}
	tx.InsertText(path, e.text.visibleLen(), s)
}

// ReplaceText clears path's current content and writes s in its place —
// each deleted character and each inserted character becomes its own op,
// so concurrent edits on another replica still merge character-by-character
// instead of one replica's whole-file write silently clobbering the other's.
func (tx *Tx) ReplaceText(path, s string) {
	e, ok := tx.doc.fileIdx.get(path)
	if !ok {
		return
	}
	for e.text.visibleLen() > 0 {
		id, okDel := e.text.deleteAt(0)
		if !okDel {
			break
		}
		delID := tx.doc.nextID()
		tx.doc.seen[delID] = true
		tx.doc.bumpVector(delID)
		tx.doc.txPending = append(tx.doc.txPending, op{ID: delID, Kind: opDeleteChar, Path: path, TargetID: id})
	}
	tx.AppendText(path, s)
}

// RemoveFile tombstones every add-tag this replica has observed for path.
func (tx *Tx) RemoveFile(path string) {
	tags := tx.doc.fileIdx.remove(path)
	for _, tag := range tags {
		id := tx.doc.nextID()
		tx.doc.emit(op{ID: id, Kind: opFileRemove, Path: path, Tag: tag})
	}
}

// AppendOpLog appends entry to the audit trail.
func (tx *Tx) AppendOpLog(entry model.Operation) {
	id := tx.doc.nextID()
	tx.doc.emit(op{ID: id, Kind: opLogAppend, LogEntry: entry})
}

// SetActivity records user's current presence.
func (tx *Tx) SetActivity(user string, a model.Activity) {
	id := tx.doc.nextID()
	tx.doc.emit(op{ID: id, Kind: opActivitySet, User: user, Activity: a})
}

// RemoveActivity clears user's presence entry (on disconnect).
func (tx *Tx) RemoveActivity(user string) {
	id := tx.doc.nextID()
	tx.doc.emit(op{ID: id, Kind: opActivityRemove, User: user})
}
