// Package snapshotstore persists opaque per-session CRDT state so a
// session survives a hub restart. The store never
// interprets the bytes it holds — that is the document's job on restore.
package snapshotstore

import "context"

// Store is a key-value map from session id to the opaque bytes
// Session.SnapshotBytes produced. Implementations are pluggable; the
// reference ones are a directory on disk (Go stdlib) and a bbolt bucket.
type Store interface {
	// Put writes data for sessionID. Implementations need not make the
	// write atomic across a crash; a torn write must surface as Get
	// reporting absent, never as corrupt bytes.
	Put(ctx context.Context, sessionID string, data []byte) error

	// Get returns the stored bytes for sessionID, or ok=false if none
	// exist (including a torn/corrupt write).
	Get(ctx context.Context, sessionID string) (data []byte, ok bool, err error)

	// Close releases any resources the store holds open.
	Close() error
}
