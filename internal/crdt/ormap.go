package crdt

import "github.com/theonlypal/collabfs/internal/model"

// fileEntry is the per-path state backing both fileTree and fileContents.
// Existence follows observed-remove semantics: a path is alive as long as
// at least one add-tag for it hasn't been observed-removed. A concurrent
// create of the path carries a new tag and so survives a remove that did
// not observe it; edits to a path that already exists add no tag, so a
// concurrent remove hides them along with the file.
type fileEntry struct {
	tags map[OpID]struct{} // alive add-tags
	meta model.FileMeta
	metaID OpID // id of the op that produced meta, for LWW comparison
	text *rga
}

func (e *fileEntry) alive() bool { return len(e.tags) > 0 }

// fileIndex is the OR-map of path -> fileEntry shared by fileTree and
// fileContents.
type fileIndex struct {
	entries map[string]*fileEntry
}

func newFileIndex() *fileIndex {
	return &fileIndex{entries: make(map[string]*fileEntry)}
}

func (fi *fileIndex) get(path string) (*fileEntry, bool) {
	e, ok := fi.entries[path]
	if !ok || !e.alive() {
		return nil, false
	}
	return e, true
}

// add introduces a new alive tag for path, creating the entry if needed.
// Returns the entry so the caller can attach content/meta.
func (fi *fileIndex) add(path string, tag OpID) *fileEntry {
	e, ok := fi.entries[path]
	if !ok {
		e = &fileEntry{tags: make(map[OpID]struct{}), text: newRGA()}
		fi.entries[path] = e
	}
	e.tags[tag] = struct{}{}
	return e
}

// remove tombstones every tag this replica currently observes as alive for
// path. A concurrent add() racing in from another replica introduces a new
// tag this call never sees, so it survives — the OR-Set "add wins" rule.
func (fi *fileIndex) remove(path string) []OpID {
	e, ok := fi.entries[path]
	if !ok {
		return nil
	}
	removed := make([]OpID, 0, len(e.tags))
	for t := range e.tags {
		removed = append(removed, t)
	}
	for _, t := range removed {
		delete(e.tags, t)
	}
	return removed
}

// removeTag tombstones a single previously-observed tag (used when
// applying a remote opFileRemove, which names the exact tag it saw).
func (fi *fileIndex) removeTag(path string, tag OpID) {
	if e, ok := fi.entries[path]; ok {
		delete(e.tags, tag)
	}
}

// setMeta applies an LWW metadata write, keeping whichever of the current
// and incoming metadata has the later OpID.
func (fi *fileIndex) setMeta(path string, id OpID, meta model.FileMeta) {
	e, ok := fi.entries[path]
	if !ok {
		return
	}
	if e.metaID.Zero() || e.metaID.Less(id) {
		e.meta = meta
		e.metaID = id
	}
}

// paths returns every currently-alive path.
func (fi *fileIndex) paths() []string {
	var out []string
	for p, e := range fi.entries {
		if e.alive() {
			out = append(out, p)
		}
	}
	return out
}
