// Package transport adapts the hub's RawStream contract onto a real
// network connection using github.com/coder/websocket.
package transport

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	"github.com/theonlypal/collabfs/internal/protocol"
)

// wsStream adapts a *websocket.Conn to hub.RawStream. One wsStream wraps
// one accepted (server-side) or dialed (client-side) connection.
type wsStream struct {
	conn       *websocket.Conn
	remoteAddr string
}

func newWSStream(conn *websocket.Conn, remoteAddr string) *wsStream {
	return &wsStream{conn: conn, remoteAddr: remoteAddr}
}

// ReadFrame reads the next WebSocket message and decodes it as one
// protocol frame — message-oriented framing means no outer length prefix
// is needed.
func (s *wsStream) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return protocol.Frame{}, err
	}
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("transport: %w", err)
	}
	return f, nil
}

// WriteFrame encodes f and sends it as one binary WebSocket message.
func (s *wsStream) WriteFrame(ctx context.Context, f protocol.Frame) error {
	return s.conn.Write(ctx, websocket.MessageBinary, protocol.EncodeFrame(f))
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (s *wsStream) RemoteAddr() string { return s.remoteAddr }
