// Package session wraps one collaborative document with the bookkeeping a
// hub (or a client replica) needs around it: participants, the fencing-
// token counter, and the high-level file operations that translate into
// CRDT transactions.
package session

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/theonlypal/collabfs/internal/crdt"
	"github.com/theonlypal/collabfs/internal/model"
)

// Session owns one document and the state that sits outside the CRDT
// proper: who is here, and the next fencing token to hand out. A Session
// is used both server-side (one per joined session, held by the hub) and
// client-side (one per connected replica).
type Session struct {
	ID          string
	NodeID      string
	CreatedAtMs int64

	doc *crdt.Document

	participants map[string]struct{}
	tokenCounter int64
}

// New creates a fresh session for sessionID, with a document replica
// identified by nodeID. tokenCounter always starts at zero: fencing
// tokens are in-memory only and are never persisted across restarts.
func New(sessionID, nodeID string) *Session {
	return &Session{
		ID:           sessionID,
		NodeID:       nodeID,
		CreatedAtMs:  nowMs(),
		doc:          crdt.New(nodeID),
		participants: make(map[string]struct{}),
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Document returns the underlying CRDT document, for the sync protocol
// (EncodeStateVector/EncodeStateAsUpdate/ApplyUpdate/Subscribe) and for
// read-only diagnostics. Callers MUST NOT reach into it to mutate state
// directly — use Session's own operations, which hold the fencing and
// op-log bookkeeping together with the document transaction.
func (s *Session) Document() *crdt.Document { return s.doc }

// AddParticipant registers user as present in this session.
func (s *Session) AddParticipant(user string) {
	s.participants[user] = struct{}{}
}

// RemoveParticipant removes user from the participant set and clears
// their activity entry.
func (s *Session) RemoveParticipant(user string) {
	delete(s.participants, user)
	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		tx.RemoveActivity(user)
	})
}

// ParticipantCount returns the number of currently joined participants.
func (s *Session) ParticipantCount() int { return len(s.participants) }

// NextToken returns the next fencing token for a structural or write
// operation. Tokens are strictly increasing for the life of this Session
// value.
func (s *Session) NextToken() int64 {
	s.tokenCounter++
	return s.tokenCounter
}

// LogOperation appends entry to the op-log in its own transaction. Used
// directly by callers that need to record an outcome outside of
// WriteFile/MoveFile/DeleteFile's own combined transactions (e.g. a
// rejected operation the caller validated before calling Session at all).
func (s *Session) LogOperation(entry model.Operation) {
	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		tx.AppendOpLog(entry)
	})
}

// WriteFile creates path if absent, then applies content according to
// mode (overwrite replaces the whole text; append adds to the end), and
// appends the resulting Operation to the op-log — all inside one
// transaction, so peers observe the create/edit/metadata/log-append as a
// single atomic change.
func (s *Session) WriteFile(path, content, by string, mode model.WriteMode) int64 {
	token := s.NextToken()
	now := nowMs()
	kind := model.OpWrite

	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		created := tx.EnsureFile(path, model.FileMeta{})
		if created {
			kind = model.OpCreate
		}

		switch mode {
		case model.WriteAppend:
			tx.AppendText(path, content)
		default:
			tx.ReplaceText(path, content)
		}

		meta := model.FileMeta{
			LastModifiedMs: now,
			LastModifiedBy: by,
			Token:          token,
			SizeBytes:      int64(tx.TextLen(path)),
		}
		tx.SetMeta(path, meta)

		tx.AppendOpLog(model.Operation{
			Token:       token,
			Kind:        kind,
			Path:        path,
			By:          by,
			TimestampMs: now,
			Success:     true,
		})
	})
	return token
}

// WriteBinaryFile is WriteFile for content that is not plain text: the
// bytes are carried base64-encoded inside the text CRDT. Always a full
// overwrite — appending to an encoded payload would corrupt it.
func (s *Session) WriteBinaryFile(path string, content []byte, by string) int64 {
	token := s.NextToken()
	now := nowMs()
	kind := model.OpWrite

	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		created := tx.EnsureFile(path, model.FileMeta{})
		if created {
			kind = model.OpCreate
		}

		tx.ReplaceText(path, base64.StdEncoding.EncodeToString(content))

		meta := model.FileMeta{
			LastModifiedMs: now,
			LastModifiedBy: by,
			Token:          token,
			SizeBytes:      int64(len(content)),
			IsBinary:       true,
		}
		tx.SetMeta(path, meta)

		tx.AppendOpLog(model.Operation{
			Token:       token,
			Kind:        kind,
			Path:        path,
			By:          by,
			TimestampMs: now,
			Success:     true,
		})
	})
	return token
}

// ReadBinaryFile decodes a path written by WriteBinaryFile back into raw
// bytes.
func (s *Session) ReadBinaryFile(path string) ([]byte, bool, error) {
	text, ok := s.doc.Text(path)
	if !ok {
		return nil, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, true, fmt.Errorf("session: decode binary content of %s: %w", path, err)
	}
	return data, true, nil
}

// MoveFile moves old to new, checking preconditions against the current
// merged document and logging both failure and success. The check-then-mutate runs inside
// a single transaction under the session's own writer discipline, so no
// concurrent caller on this replica can observe a half-applied move.
func (s *Session) MoveFile(oldPath, newPath, by string) (int64, error) {
	token := s.NextToken()
	now := nowMs()
	var opErr error

	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		if !tx.FileExists(oldPath) {
			opErr = ErrFileMissing
			tx.AppendOpLog(model.Operation{
				Token: token, Kind: model.OpMove, Path: oldPath, NewPath: newPath,
				By: by, TimestampMs: now, Success: false, Error: opErr.Error(),
			})
			return
		}
		if tx.FileExists(newPath) {
			opErr = ErrDestinationExists
			tx.AppendOpLog(model.Operation{
				Token: token, Kind: model.OpMove, Path: oldPath, NewPath: newPath,
				By: by, TimestampMs: now, Success: false, Error: opErr.Error(),
			})
			return
		}

		content := tx.ReadText(oldPath)
		meta, _ := tx.ReadMeta(oldPath)

		tx.EnsureFile(newPath, meta)
		tx.ReplaceText(newPath, content)
		meta.LastModifiedMs = now
		meta.LastModifiedBy = by
		meta.Token = token
		tx.SetMeta(newPath, meta)

		tx.RemoveFile(oldPath)

		tx.AppendOpLog(model.Operation{
			Token: token, Kind: model.OpMove, Path: oldPath, NewPath: newPath,
			By: by, TimestampMs: now, Success: true,
		})
	})

	return token, opErr
}

// DeleteFile removes path, checking its precondition and logging the
// outcome inside one transaction.
func (s *Session) DeleteFile(path, by string) (int64, error) {
	token := s.NextToken()
	now := nowMs()
	var opErr error

	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		if !tx.FileExists(path) {
			opErr = ErrFileMissing
			tx.AppendOpLog(model.Operation{
				Token: token, Kind: model.OpDelete, Path: path,
				By: by, TimestampMs: now, Success: false, Error: opErr.Error(),
			})
			return
		}

		tx.RemoveFile(path)

		tx.AppendOpLog(model.Operation{
			Token: token, Kind: model.OpDelete, Path: path,
			By: by, TimestampMs: now, Success: true,
		})
	})

	return token, opErr
}

// UpdateActivity merges partial into user's current activity entry and
// stamps the current time. Empty Action or CurrentFile fields in partial
// keep the entry's existing values.
func (s *Session) UpdateActivity(user string, partial model.Activity) {
	merged, _ := s.doc.Activity(user)
	if partial.Action != "" {
		merged.Action = partial.Action
	}
	if partial.CurrentFile != "" {
		merged.CurrentFile = partial.CurrentFile
	}
	merged.UserID = user
	merged.TimestampMs = nowMs()
	s.doc.Transaction(crdt.OriginLocal, func(tx *crdt.Tx) {
		tx.SetActivity(user, merged)
	})
}

// ReadFile returns path's current merged content.
func (s *Session) ReadFile(path string) (string, bool) {
	return s.doc.Text(path)
}

// ListFiles is a pure read: every alive (path, meta) pair whose path
// starts with prefix (empty prefix returns everything).
func (s *Session) ListFiles(prefix string) []model.FileEntry {
	return s.doc.ListFiles(prefix)
}

// OpLog returns the full audit trail, oldest first.
func (s *Session) OpLog() []model.Operation {
	return s.doc.OpLog()
}

// Stats summarizes the session for the "joined" frame payload.
func (s *Session) Stats() model.Stats {
	files, ops := s.doc.Counts()
	return model.Stats{
		ParticipantCount: s.ParticipantCount(),
		FileCount:        files,
		OpLogLength:      ops,
	}
}

// SnapshotBytes returns the document's full encoded state.
func (s *Session) SnapshotBytes() []byte {
	return s.doc.EncodeStateAsUpdate(nil)
}

// RestoreFrom integrates previously snapshotted bytes with origin
// OriginRestore.
func (s *Session) RestoreFrom(data []byte) error {
	return s.doc.ApplyUpdate(data, crdt.OriginRestore)
}
