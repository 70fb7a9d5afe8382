// Package client implements the client-side replica: its own CRDT
// document, the join handshake, sync-protocol participation, heartbeat,
// and a reconnect loop with exponential backoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/theonlypal/collabfs/internal/crdt"
	"github.com/theonlypal/collabfs/internal/model"
	"github.com/theonlypal/collabfs/internal/protocol"
	"github.com/theonlypal/collabfs/internal/session"
)

// ErrPermanentDisconnect is returned by Run when the reconnect budget is
// exhausted.
var ErrPermanentDisconnect = errors.New("client: reconnect attempts exhausted")

// Config configures one client replica.
type Config struct {
	URL       string
	UserID    string
	SessionID string

	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxReconnects     int
}

// DefaultConfig returns a config with a 30s heartbeat and reconnect
// backoff starting at 1s, doubling to a 10s cap, for at most 10 attempts.
func DefaultConfig(url, userID, sessionID string) Config {
	return Config{
		URL:               url,
		UserID:            userID,
		SessionID:         sessionID,
		HeartbeatInterval: 30 * time.Second,
		ReconnectBase:     1 * time.Second,
		ReconnectMax:      10 * time.Second,
		MaxReconnects:     10,
	}
}

// Client is one connected (or reconnecting) replica. It owns a Session —
// the same type the hub uses server-side — so its public file/activity
// operations are identical on both sides of the wire.
type Client struct {
	cfg  Config
	sess *session.Session
	log  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nodeID string

	// OnStateChange, if set, is called on every connection state
	// transition ("connecting", "connected", "disconnected", "permanent_disconnect").
	OnStateChange func(state string, err error)
}

// New creates a client replica for cfg, with a fresh UUID as its CRDT
// replica id.
func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	nodeID := uuid.NewString()
	c := &Client{
		cfg:    cfg,
		sess:   session.New(cfg.SessionID, nodeID),
		log:    log,
		nodeID: nodeID,
	}
	c.sess.Document().Subscribe(c.onLocalChange)
	return c
}

// Session exposes the underlying session so callers can use its public
// file/activity operations (WriteFile, MoveFile, DeleteFile, ListFiles,
// ReadFile, UpdateActivity).
func (c *Client) Session() *session.Session { return c.sess }

// onLocalChange is the document's change listener. Origin discipline:
// updates whose origin is OriginHub or OriginRestore must not be
// re-sent, or every relayed update would bounce back to the hub forever.
func (c *Client) onLocalChange(update []byte, origin string) {
	if origin == crdt.OriginHub || origin == crdt.OriginRestore {
		return
	}
	c.sendSync(protocol.SyncStepUpdate, update)
}

func (c *Client) sendSync(step protocol.SyncStep, payload []byte) {
	c.writeFrame(protocol.Sync(step, payload))
}

func (c *Client) writeFrame(f protocol.Frame) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return // not connected; reconnect's sync handshake will resync
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, protocol.EncodeFrame(f)); err != nil {
		c.log.Debug("write failed", "err", err)
	}
}

func (c *Client) notifyState(state string, err error) {
	if c.OnStateChange != nil {
		c.OnStateChange(state, err)
	}
}

// Run connects and serves until ctx is cancelled or the reconnect budget
// is exhausted, reconnecting on unexpected close with exponential
// backoff.
func (c *Client) Run(ctx context.Context) error {
	c.notifyState("connecting", nil)
	delay := c.cfg.ReconnectBase
	attempts := 0

	for {
		connected, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			c.notifyState("disconnected", ctx.Err())
			return ctx.Err()
		}
		if connected {
			attempts = 0
			delay = c.cfg.ReconnectBase
		}
		c.notifyState("disconnected", err)

		attempts++
		if attempts > c.cfg.MaxReconnects {
			c.notifyState("permanent_disconnect", ErrPermanentDisconnect)
			return ErrPermanentDisconnect
		}

		select {
		case <-ctx.Done():
			c.notifyState("disconnected", ctx.Err())
			return ctx.Err()
		case <-time.After(delay):
		}
		c.notifyState("connecting", nil)
		delay *= 2
		if delay > c.cfg.ReconnectMax {
			delay = c.cfg.ReconnectMax
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) (connected bool, err error) {
	conn, _, dialErr := websocket.Dial(ctx, c.cfg.URL, nil)
	if dialErr != nil {
		return false, fmt.Errorf("dial: %w", dialErr)
	}
	defer conn.CloseNow()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()
	connected = true

	join, encErr := protocol.EncodeControl(protocol.Control{
		Type: protocol.TypeJoin, UserID: c.cfg.UserID, SessionID: c.cfg.SessionID,
	})
	if encErr != nil {
		return connected, encErr
	}
	if err := conn.Write(ctx, websocket.MessageBinary, protocol.EncodeFrame(join)); err != nil {
		return connected, fmt.Errorf("join: %w", err)
	}

	// The hub's own step 0 pulls this replica's state up to the hub; this
	// step 0 pulls the hub's state down — without it a reconnecting client
	// would push its offline edits but never learn what it missed.
	vector := c.sess.Document().EncodeStateVector()
	step0 := protocol.Sync(protocol.SyncStepVector, vector)
	if err := conn.Write(ctx, websocket.MessageBinary, protocol.EncodeFrame(step0)); err != nil {
		return connected, fmt.Errorf("sync step 0: %w", err)
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go c.heartbeatLoop(hbCtx)

	c.notifyState("connected", nil)

	for {
		_, data, readErr := conn.Read(ctx)
		if readErr != nil {
			return connected, fmt.Errorf("read: %w", readErr)
		}
		f, decErr := protocol.DecodeFrame(data)
		if decErr != nil {
			c.log.Warn("malformed frame from hub", "err", decErr)
			continue
		}
		c.handleFrame(ctx, f)
	}
}

func (c *Client) handleFrame(ctx context.Context, f protocol.Frame) {
	switch f.Kind {
	case protocol.KindSync:
		switch f.Step {
		case protocol.SyncStepVector:
			answer := c.sess.Document().EncodeStateAsUpdate(f.Payload)
			c.sendSync(protocol.SyncStepAnswer, answer)
		case protocol.SyncStepAnswer, protocol.SyncStepUpdate:
			if err := c.sess.Document().ApplyUpdate(f.Payload, crdt.OriginHub); err != nil {
				c.log.Warn("apply_update failed", "err", err)
			}
		}

	case protocol.KindAwareness:
		// Opaque to the core; an outer adapter would surface this to a UI.

	case protocol.KindCustom:
		ctrl, err := protocol.DecodeControl(f)
		if err != nil {
			return
		}
		c.handleControl(ctrl)
	}
}

func (c *Client) handleControl(ctrl protocol.Control) {
	switch ctrl.Type {
	case protocol.TypeJoined:
		c.log.Info("joined session", "session", c.cfg.SessionID)
	case protocol.TypeParticipantJoined, protocol.TypeParticipantLeft, protocol.TypeActivityUpdate:
		// Presence-only; an outer adapter surfaces these to a UI. The core
		// has already applied the corresponding CRDT activity change via
		// whichever replica originated it.
	case protocol.TypeError:
		c.log.Warn("hub reported error", "error", ctrl.Error)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb, err := protocol.EncodeControl(protocol.Control{
				Type: protocol.TypeHeartbeat, UserID: c.cfg.UserID, SessionID: c.cfg.SessionID,
			})
			if err != nil {
				continue
			}
			c.writeFrame(hb)
		}
	}
}

// RequestMove asks the hub to move oldPath to newPath. Unlike WriteFile,
// this is not applied to the local document first: move/delete need a
// single authoritative arbiter for their fencing check, so the client
// only requests the move and waits for the resulting op-log entry to
// arrive back through the normal sync path, the same way it would see
// any other peer's structural change.
func (c *Client) RequestMove(oldPath, newPath string) {
	f, err := protocol.EncodeControl(protocol.NewMoveFile(c.cfg.UserID, c.cfg.SessionID, oldPath, newPath))
	if err != nil {
		return
	}
	c.writeFrame(f)
}

// RequestDelete asks the hub to delete path, with the same authoritative
// arbitration as RequestMove.
func (c *Client) RequestDelete(path string) {
	f, err := protocol.EncodeControl(protocol.NewDeleteFile(c.cfg.UserID, c.cfg.SessionID, path))
	if err != nil {
		return
	}
	c.writeFrame(f)
}

// SendActivity updates this client's own presence and notifies the hub
// out-of-band via a custom update_activity frame, in addition to the
// change already flowing through the CRDT activity container.
func (c *Client) SendActivity(action model.ActivityAction, currentFile string) {
	c.sess.UpdateActivity(c.cfg.UserID, model.Activity{Action: action, CurrentFile: currentFile})

	msg, err := protocol.EncodeControl(protocol.Control{
		Type: protocol.TypeUpdateActivity, UserID: c.cfg.UserID, SessionID: c.cfg.SessionID,
		Activity: &protocol.ActivityPayload{Action: string(action), CurrentFile: currentFile},
	})
	if err != nil {
		return
	}
	c.writeFrame(msg)
}
