package crdt

import "github.com/theonlypal/collabfs/internal/model"

// op is one integrated mutation, tagged with the OpID that produced it.
// A Document's "update" bytes are just a gob-encoded slice of these — the
// core never inspects them beyond routing; only this package interprets
// op.Kind.
type op struct {
	ID   OpID
	Kind opKind

	// text ops (fileContents[Path])
	Path        string
	InsertAfter OpID // predecessor node id for opInsertChar
	Char        rune // payload for opInsertChar
	TargetID    OpID // node id for opDeleteChar

	// file-existence / metadata ops (fileTree + fileContents presence)
	Tag  OpID // the add-tag this op introduces or removes
	Meta model.FileMeta

	// op-log ops
	LogEntry model.Operation

	// activity ops
	User     string // user-id key for opActivitySet / opActivityRemove
	Activity model.Activity
}

type opKind uint8

const (
	opInsertChar opKind = iota
	opDeleteChar
	opFileAdd    // introduces a new alive tag for Path, carrying initial Meta
	opFileRemove // tombstones Tag for Path
	opMetaSet    // updates the LWW metadata payload for Path
	opLogAppend
	opActivitySet
	opActivityRemove
)
