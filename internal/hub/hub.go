// Package hub implements the central coordinator: it accepts stream
// connections, registers them against sessions, relays sync/awareness
// frames between peers, applies custom control frames, and snapshots
// sessions to a Store.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/theonlypal/collabfs/internal/crdt"
	"github.com/theonlypal/collabfs/internal/model"
	"github.com/theonlypal/collabfs/internal/protocol"
	"github.com/theonlypal/collabfs/internal/session"
	"github.com/theonlypal/collabfs/internal/snapshotstore"
)

// Config tunes the hub's timing and resource limits. DefaultConfig returns
// the standard values; New uses the fields as given and does not fill in
// zero values (a zero SnapshotInterval disables periodic snapshots).
type Config struct {
	OutboundQueueSize int           // per-connection outbound frame backlog before it is dropped
	HeartbeatInterval time.Duration // how often clients are expected to ping
	HeartbeatTimeout  time.Duration // silence after which a stream is closed as if "leave" arrived
	SnapshotInterval  time.Duration // how often an active session is snapshotted
}

// DefaultConfig returns 30s heartbeat, 3x that as the liveness timeout,
// and a 5 minute snapshot cadence.
func DefaultConfig() Config {
	return Config{
		OutboundQueueSize: 256,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		SnapshotInterval:  5 * time.Minute,
	}
}

// Hub is the single-process, multi-session coordinator.
type Hub struct {
	cfg   Config
	store snapshotstore.Store
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*hubSession
}

// hubSession is one session's server-side bookkeeping: its document-
// backed Session plus the connections currently joined to it.
//
// Two locks, never interchangeable: writeMu is the session's single
// logical writer — every applyUpdate, file operation, participant change,
// and snapshot read runs under it; connsMu guards only the conns map.
// The document's change notification fires inside a writeMu-held
// mutation and fans out via broadcastExcept, which takes connsMu — so
// the lock order is always writeMu before connsMu, and nothing may
// touch the session or its document while holding connsMu.
type hubSession struct {
	writeMu sync.Mutex
	sess    *session.Session

	connsMu sync.Mutex
	conns   map[*conn]*clientInfo

	cancelSnapshot context.CancelFunc
}

type clientInfo struct {
	userID    string
	sessionID string
}

// New creates a Hub that persists sessions to store.
func New(cfg Config, store snapshotstore.Store, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		store:    store,
		log:      log,
		sessions: make(map[string]*hubSession),
	}
}

// Serve runs one connection's full lifecycle to completion: it blocks
// until the stream closes, the heartbeat times out, or ctx is cancelled.
// The caller (internal/transport) is expected to call Serve in its own
// goroutine per accepted connection.
func (h *Hub) Serve(ctx context.Context, raw RawStream) error {
	c := newConn(raw, h.cfg.OutboundQueueSize)

	writeCtx, cancelWrite := context.WithCancel(ctx)
	defer cancelWrite()
	go c.writeLoop(writeCtx)
	defer c.Close()

	var hs *hubSession
	var info *clientInfo

	deadline := time.Now().Add(h.cfg.HeartbeatTimeout)

	defer func() {
		if hs != nil && info != nil {
			h.departSession(hs, c, info.userID)
		}
	}()

	for {
		readCtx, cancelRead := context.WithDeadline(ctx, deadline)
		f, err := raw.ReadFrame(readCtx)
		cancelRead()
		if err != nil {
			return err
		}
		// Any frame is proof of life, not just heartbeats.
		deadline = time.Now().Add(h.cfg.HeartbeatTimeout)

		switch f.Kind {
		case protocol.KindCustom:
			ctrl, decErr := protocol.DecodeControl(f)
			if decErr != nil {
				h.log.Warn("malformed custom frame", "remote", raw.RemoteAddr(), "err", decErr)
				return fmt.Errorf("hub: %w", protocol.ErrMalformedFrame)
			}
			switch ctrl.Type {
			case protocol.TypeJoin:
				if hs != nil {
					continue // already joined; ignore a duplicate join
				}
				hs, info = h.handleJoin(ctx, c, ctrl)
			case protocol.TypeLeave:
				if hs != nil {
					h.departSession(hs, c, info.userID)
					hs, info = nil, nil
				}
			case protocol.TypeHeartbeat:
				if hs != nil {
					hs.writeMu.Lock()
					hs.sess.UpdateActivity(info.userID, model.Activity{Action: model.ActivityIdle})
					hs.writeMu.Unlock()
				}
			case protocol.TypeUpdateActivity:
				if hs == nil {
					continue
				}
				h.handleUpdateActivity(hs, c, info.userID, ctrl)
			case protocol.TypeMoveFile:
				if hs == nil {
					continue
				}
				h.handleMoveFile(hs, info.userID, ctrl)
			case protocol.TypeDeleteFile:
				if hs == nil {
					continue
				}
				h.handleDeleteFile(hs, info.userID, ctrl)
			default:
				h.log.Warn("unknown control type", "type", ctrl.Type)
			}

		case protocol.KindSync:
			if hs == nil {
				if ef, encErr := protocol.EncodeControl(protocol.NewError("sync before join")); encErr == nil {
					c.enqueue(ef)
				}
				return ErrUnknownSession
			}
			h.handleSync(hs, c, f)

		case protocol.KindAwareness:
			if hs == nil {
				continue
			}
			h.broadcastExcept(hs, c, f)

		default:
			return fmt.Errorf("hub: %w", protocol.ErrMalformedFrame)
		}
	}
}

// handleJoin gets or creates the session (restoring from a snapshot if
// one exists), registers the connection, sends "joined", kicks off sync
// step 0, and tells the other peers.
func (h *Hub) handleJoin(ctx context.Context, c *conn, ctrl protocol.Control) (*hubSession, *clientInfo) {
	hs := h.getOrCreateSession(ctx, ctrl.SessionID)

	info := &clientInfo{userID: ctrl.UserID, sessionID: ctrl.SessionID}

	hs.connsMu.Lock()
	hs.conns[c] = info
	hs.connsMu.Unlock()

	hs.writeMu.Lock()
	hs.sess.AddParticipant(ctrl.UserID)
	stats := hs.sess.Stats()
	vector := hs.sess.Document().EncodeStateVector()
	hs.writeMu.Unlock()

	joined := protocol.NewJoined(ctrl.SessionID, protocol.Stats{
		ParticipantCount: stats.ParticipantCount,
		FileCount:        stats.FileCount,
		OpLogLength:      stats.OpLogLength,
	})
	if f, err := protocol.EncodeControl(joined); err == nil {
		c.enqueue(f)
	}
	c.enqueue(protocol.Sync(protocol.SyncStepVector, vector))

	joinedMsg := protocol.NewParticipantJoined(ctrl.UserID)
	if f, err := protocol.EncodeControl(joinedMsg); err == nil {
		h.broadcastExcept(hs, c, f)
	}

	return hs, info
}

// handleSync applies step-1 answers and relays them as step-2; step-2
// updates are applied and relayed unmodified. Apply and forward both run
// under the session's writer lock so peers receive updates in the same
// order they were committed server-side.
func (h *Hub) handleSync(hs *hubSession, from *conn, f protocol.Frame) {
	switch f.Step {
	case protocol.SyncStepVector:
		hs.writeMu.Lock()
		answer := hs.sess.Document().EncodeStateAsUpdate(f.Payload)
		hs.writeMu.Unlock()
		from.enqueue(protocol.Sync(protocol.SyncStepAnswer, answer))

	case protocol.SyncStepAnswer, protocol.SyncStepUpdate:
		hs.writeMu.Lock()
		err := hs.sess.Document().ApplyUpdate(f.Payload, crdt.OriginHub)
		h.broadcastExcept(hs, from, protocol.Sync(protocol.SyncStepUpdate, f.Payload))
		hs.writeMu.Unlock()
		if err != nil {
			h.log.Warn("apply_update failed", "session", hs.sess.ID, "err", err)
		}
	}
}

func (h *Hub) handleUpdateActivity(hs *hubSession, from *conn, userID string, ctrl protocol.Control) {
	if ctrl.Activity == nil {
		return
	}
	hs.writeMu.Lock()
	hs.sess.UpdateActivity(userID, modelActivityFrom(ctrl.Activity))
	hs.writeMu.Unlock()

	msg := protocol.NewActivityUpdate(userID, *ctrl.Activity)
	if f, err := protocol.EncodeControl(msg); err == nil {
		h.broadcastExcept(hs, from, f)
	}
}

// handleMoveFile runs a move request to completion against hs's
// authoritative document: the fencing check-then-mutate happens here,
// server-side, under the writer lock, so two requests racing for the
// same source path are serialized and only one can observe the
// precondition as true. The resulting op-log entry (success either way)
// reaches every peer, including the requester, through the document's
// change subscription.
func (h *Hub) handleMoveFile(hs *hubSession, userID string, ctrl protocol.Control) {
	hs.writeMu.Lock()
	_, err := hs.sess.MoveFile(ctrl.Path, ctrl.NewPath, userID)
	hs.writeMu.Unlock()
	if err != nil {
		h.log.Debug("move_file rejected", "session", hs.sess.ID, "path", ctrl.Path, "err", err)
	}
}

// handleDeleteFile is handleMoveFile's counterpart for delete requests.
func (h *Hub) handleDeleteFile(hs *hubSession, userID string, ctrl protocol.Control) {
	hs.writeMu.Lock()
	_, err := hs.sess.DeleteFile(ctrl.Path, userID)
	hs.writeMu.Unlock()
	if err != nil {
		h.log.Debug("delete_file rejected", "session", hs.sess.ID, "path", ctrl.Path, "err", err)
	}
}

// broadcastExcept sends f to every connection in hs other than from.
// Connections whose outbound queue is saturated are dropped rather than
// allowed to stall delivery to the rest of the session.
func (h *Hub) broadcastExcept(hs *hubSession, from *conn, f protocol.Frame) {
	hs.connsMu.Lock()
	targets := make([]*conn, 0, len(hs.conns))
	for c := range hs.conns {
		if c != from {
			targets = append(targets, c)
		}
	}
	hs.connsMu.Unlock()

	for _, c := range targets {
		if !c.enqueue(f) {
			h.log.Warn("dropping slow peer", "remote", c.RemoteAddr(), "err", ErrBackpressure)
		}
	}
}

// departSession removes c (and, if userID was its last connection in the
// session, the participant) and broadcasts participant_left. If the
// session has no connections left, it takes a final snapshot and removes
// the session before returning.
func (h *Hub) departSession(hs *hubSession, c *conn, userID string) {
	hs.connsMu.Lock()
	delete(hs.conns, c)
	stillPresent := false
	for _, info := range hs.conns {
		if info.userID == userID {
			stillPresent = true
			break
		}
	}
	empty := len(hs.conns) == 0
	hs.connsMu.Unlock()

	if !stillPresent {
		hs.writeMu.Lock()
		hs.sess.RemoveParticipant(userID)
		hs.writeMu.Unlock()
	}
	sessionID := hs.sess.ID

	if !stillPresent {
		msg := protocol.NewParticipantLeft(userID)
		if f, err := protocol.EncodeControl(msg); err == nil {
			h.broadcastExcept(hs, c, f)
		}
	}

	if empty {
		h.evictSession(sessionID, hs)
	}
}

// getOrCreateSession returns the live hubSession for id, creating and
// restoring it from the snapshot store on first access. A snapshot that
// fails to apply (torn write) is treated as absent — the session starts
// fresh.
func (h *Hub) getOrCreateSession(ctx context.Context, id string) *hubSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hs, ok := h.sessions[id]; ok {
		return hs
	}

	// A fresh replica id per session instance: a restarted hub must never
	// reuse the node id of its previous incarnation, or its new ops would
	// collide with restored ones.
	sess := session.New(id, uuid.NewString())
	if h.store != nil {
		if data, ok, err := h.store.Get(ctx, id); err == nil && ok {
			if restoreErr := sess.RestoreFrom(data); restoreErr != nil {
				h.log.Warn("snapshot restore failed, starting fresh", "session", id, "err", restoreErr)
				sess = session.New(id, uuid.NewString())
			}
		} else if err != nil {
			h.log.Warn("snapshot read failed, starting fresh", "session", id, "err", err)
		}
	}

	hs := &hubSession{sess: sess, conns: make(map[*conn]*clientInfo)}
	h.sessions[id] = hs
	h.startSnapshotLoop(hs)

	// Structural operations the hub performs authoritatively on this
	// session's document (move_file, delete_file, the liveness-driven
	// activity update) originate under OriginLocal, not a peer relay —
	// fan them out to every current connection so the fencing outcome and
	// activity state reach clients the same way a peer-sourced update
	// does. Peer-sourced updates are already relayed explicitly in
	// handleSync with OriginHub, so this filter never double-sends.
	hs.sess.Document().Subscribe(func(update []byte, origin string) {
		if origin != crdt.OriginLocal {
			return
		}
		h.broadcastExcept(hs, nil, protocol.Sync(protocol.SyncStepUpdate, update))
	})

	return hs
}

func (h *Hub) startSnapshotLoop(hs *hubSession) {
	if h.store == nil || h.cfg.SnapshotInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hs.cancelSnapshot = cancel

	go func() {
		ticker := time.NewTicker(h.cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.snapshotOnce(ctx, hs)
			}
		}
	}()
}

// snapshotOnce writes one snapshot for hs. A failure is logged and
// non-fatal to the session: it does not tear the session down, and the
// next tick retries.
func (h *Hub) snapshotOnce(ctx context.Context, hs *hubSession) {
	hs.writeMu.Lock()
	data := hs.sess.SnapshotBytes()
	id := hs.sess.ID
	hs.writeMu.Unlock()

	if err := h.store.Put(ctx, id, data); err != nil {
		h.log.Warn("snapshot write failed", "session", id, "err", fmt.Errorf("%w: %w", ErrSnapshotIO, err))
	}
}

// evictSession takes a final snapshot and removes the session from the
// hub's map once its last connection has departed.
func (h *Hub) evictSession(id string, hs *hubSession) {
	if hs.cancelSnapshot != nil {
		hs.cancelSnapshot()
	}
	if h.store != nil {
		h.snapshotOnce(context.Background(), hs)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.sessions[id]; ok && current == hs {
		delete(h.sessions, id)
	}
}

// Shutdown handles every session in parallel: it cancels each session's
// snapshot timer and takes one final snapshot, returning only once every
// session has finished. Connections already being served are not closed. The caller is
// responsible for stopping the listener before calling Shutdown so no
// new connections race the drain.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	sessions := make([]*hubSession, 0, len(h.sessions))
	for _, hs := range h.sessions {
		sessions = append(sessions, hs)
	}
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, hs := range sessions {
		hs := hs
		g.Go(func() error {
			if hs.cancelSnapshot != nil {
				hs.cancelSnapshot()
			}
			if h.store == nil {
				return nil
			}
			h.snapshotOnce(gctx, hs)
			return nil
		})
	}
	return g.Wait()
}

func modelActivityFrom(a *protocol.ActivityPayload) model.Activity {
	return model.Activity{Action: model.ActivityAction(a.Action), CurrentFile: a.CurrentFile}
}
